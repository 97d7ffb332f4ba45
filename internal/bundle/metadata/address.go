package metadata

import "github.com/arcworks/arc/internal/ledger"

// ProgramID is the well-known id of the metadata bundle.
var ProgramID = ledger.ProgramAddress("metadata-bundle")

// SeedSigner derives both the config address and the bundle's identity
// toward the registry.
const SeedSigner = "tsab_signer"

// ConfigAddress is the bundle singleton. Registrations are issued to this
// key.
func ConfigAddress() ledger.Address {
	return ledger.DeriveAddress(ProgramID, []byte(SeedSigner))
}
