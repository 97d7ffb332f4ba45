package ecs

import (
	"context"

	"github.com/arcworks/arc/internal/core/event"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
)

// Attach keeps w current from committed core data store events.
func (w *World) Attach(bus *event.Bus) {
	event.Subscribe(bus, func(e coreds.EntityCreated) {
		w.Create(e.Entity, coreds.RegistryInstanceAddress(e.Registry, e.Instance), e.EntityID, e.Types)
	})
	event.Subscribe(bus, func(e coreds.ComponentsAdded) {
		w.Add(e.Entity, e.Types)
	})
	event.Subscribe(bus, func(e coreds.ComponentsRemoved) {
		w.Remove(e.Entity, e.Types)
	})
	event.Subscribe(bus, func(e coreds.EntityDestroyed) {
		w.Destroy(e.Entity)
	})
}

// Rebuild replaces the index with every entity in store, e.g. after a
// restore. It returns the number of entities indexed.
func (w *World) Rebuild(ctx context.Context, rt *ledger.Runtime, core *coreds.Service) (int, error) {
	*w = *NewWorld()
	err := rt.View(ctx, func(c *ledger.Context) error {
		for _, rec := range rt.Store().Records() {
			if rec.Owner != coreds.ProgramID {
				continue
			}
			// Instance and link records share the owner; only entities decode.
			e, err := core.Entity(c, rec.Address)
			if err != nil {
				continue
			}
			w.Load(rec.Address, e)
		}
		return nil
	})
	return w.Len(), err
}
