package registry

import (
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
)

// ProgramID is the well-known id of the registry.
var ProgramID = ledger.ProgramAddress("registry")

// Derivation seeds.
const (
	SeedSigner            = coreds.SeedRegistrySigner
	SeedInstanceAuthority = "instance_authority"
	SeedSchema            = "component_schema"
	SeedRegistration      = "action_bundle_registration"
)

// ConfigAddress is where the registry singleton lives. It doubles as the
// registry's signer key toward the core data store.
func ConfigAddress() ledger.Address {
	return coreds.RegistrySigner(ProgramID)
}

// InstanceAuthorityAddress is where the authority record of an instance
// lives.
func InstanceAuthorityAddress(registryInstance ledger.Address) ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedInstanceAuthority), registryInstance[:])
}

// SchemaAddress is the component type for a canonical locator.
func SchemaAddress(canonical string) ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedSchema), []byte(canonical))
}

// RegistrationAddress is where the grants of bundle, registered through
// registryInstance, live.
func RegistrationAddress(registryInstance, bundle ledger.Address) ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedRegistration), registryInstance[:], bundle[:])
}

// InstanceAddress is the core data store address of one of this registry's
// instances.
func InstanceAddress(instance uint64) ledger.Address {
	return coreds.RegistryInstanceAddress(ProgramID, instance)
}
