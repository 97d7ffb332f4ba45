package registry

import (
	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
)

type InstanceRegistered struct {
	Instance  uint64
	Address   ledger.Address
	Authority ledger.Address
}

type SchemaRegistered struct {
	Type    component.Type
	Locator string
}

type BundleRegistered struct {
	Registration ledger.Address
	Bundle       ledger.Address
	Instance     uint64
}

type GrantsChanged struct {
	Registration ledger.Address
	Instances    []uint64
	Components   []component.Type
}
