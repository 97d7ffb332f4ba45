package coreds

import (
	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
)

// Events emitted by the core data store. They are delivered only when the
// surrounding unit of work commits.

type InstanceCreated struct {
	Registry ledger.Address
	Instance uint64
	Address  ledger.Address
}

type EntityCreated struct {
	Registry ledger.Address
	Instance uint64
	EntityID uint64
	Entity   ledger.Address
	Types    []component.Type
}

type ComponentsAdded struct {
	Entity ledger.Address
	Types  []component.Type
}

type ComponentsRemoved struct {
	Entity ledger.Address
	Types  []component.Type
}

type ComponentsModified struct {
	Entity ledger.Address
	Types  []component.Type
}

type EntityDestroyed struct {
	Entity      ledger.Address
	Beneficiary ledger.Address
}

type NFTLinked struct {
	Entity ledger.Address
	Mint   ledger.Address
	Link   ledger.Address
}
