package coreds

import "github.com/arcworks/arc/internal/ledger"

// ProgramID is the well-known id of the core data store.
var ProgramID = ledger.ProgramAddress("core-ds")

// Derivation seeds.
const (
	SeedRegistryInstance = "registry_instance"
	SeedEntity           = "entity"
	SeedNFTLink          = "arcnft"
	SeedRegistrySigner   = "registry_signer"
)

// RegistryInstanceAddress is where the instance record of (registry,
// instance) lives.
func RegistryInstanceAddress(registry ledger.Address, instance uint64) ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedRegistryInstance), registry[:], ledger.U64Seed(instance))
}

// EntityAddress is where entity entityID of a registry instance lives.
func EntityAddress(entityID uint64, registryInstance ledger.Address) ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedEntity), ledger.U64Seed(entityID), registryInstance[:])
}

// NFTLinkAddress is where the link between entity and mint lives.
func NFTLinkAddress(mint, entity ledger.Address) ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedNFTLink), mint[:], entity[:])
}

// RegistrySigner is the derived authority a registry signs with when it
// calls into the core data store.
func RegistrySigner(registry ledger.Address) ledger.Address {
	return ledger.DeriveAddress(registry, []byte(SeedRegistrySigner))
}
