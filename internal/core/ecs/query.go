package ecs

import (
	"bytes"
	"sort"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
)

// Query returns the entities of instance that carry every type in types,
// ordered by address. With no types it returns every entity of instance.
// It iterates the smallest matching store and probes the others.
func (w *World) Query(instance ledger.Address, types []component.Type) []ledger.Address {
	inst := w.byInstance[instance]
	if inst == nil {
		return nil
	}
	stores := make([]*TypeStore, 0, len(types)+1)
	stores = append(stores, inst)
	for _, t := range component.Dedup(types) {
		s := w.byType[t]
		if s == nil {
			return nil
		}
		stores = append(stores, s)
	}

	smallest := 0
	for i, s := range stores {
		if s.Len() < stores[smallest].Len() {
			smallest = i
		}
	}

	var out []ledger.Address
	stores[smallest].Each(func(entity ledger.Address) {
		for i, s := range stores {
			if i != smallest && !s.Has(entity) {
				return
			}
		}
		out = append(out, entity)
	})
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
