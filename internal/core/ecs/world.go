// Package ecs keeps an in-memory projection of committed entities so the
// daemon can answer "which entities carry these components" without
// scanning the slot store.
package ecs

import (
	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
)

// Row is the projection of one entity.
type Row struct {
	Entity   ledger.Address
	Instance ledger.Address // registry instance address
	EntityID uint64
	Types    map[component.Type]struct{}
}

// World indexes entities by instance and by component type. It is fed
// committed core data store events and lags the store by at most one
// tick. Owned by the daemon loop; not safe for concurrent use.
type World struct {
	rows       map[ledger.Address]*Row
	byInstance map[ledger.Address]*TypeStore
	byType     map[component.Type]*TypeStore
}

func NewWorld() *World {
	return &World{
		rows:       make(map[ledger.Address]*Row, 1024),
		byInstance: make(map[ledger.Address]*TypeStore),
		byType:     make(map[component.Type]*TypeStore),
	}
}

// Len returns the number of indexed entities.
func (w *World) Len() int { return len(w.rows) }

// Get returns the row for entity, or nil.
func (w *World) Get(entity ledger.Address) *Row { return w.rows[entity] }

// Create indexes a new entity. Re-creating a known entity replaces it.
func (w *World) Create(entity, instance ledger.Address, entityID uint64, types []component.Type) {
	w.Destroy(entity)
	row := &Row{
		Entity:   entity,
		Instance: instance,
		EntityID: entityID,
		Types:    make(map[component.Type]struct{}, len(types)),
	}
	w.rows[entity] = row
	store(w.byInstance, instance).Add(entity)
	w.Add(entity, types)
}

// Add records types on entity. Unknown entities are ignored.
func (w *World) Add(entity ledger.Address, types []component.Type) {
	row := w.rows[entity]
	if row == nil {
		return
	}
	for _, t := range types {
		row.Types[t] = struct{}{}
		store(w.byType, t).Add(entity)
	}
}

// Remove drops types from entity.
func (w *World) Remove(entity ledger.Address, types []component.Type) {
	row := w.rows[entity]
	if row == nil {
		return
	}
	for _, t := range types {
		delete(row.Types, t)
		if s := w.byType[t]; s != nil {
			s.Remove(entity)
			if s.Len() == 0 {
				delete(w.byType, t)
			}
		}
	}
}

// Destroy removes entity from every store.
func (w *World) Destroy(entity ledger.Address) {
	row := w.rows[entity]
	if row == nil {
		return
	}
	types := make([]component.Type, 0, len(row.Types))
	for t := range row.Types {
		types = append(types, t)
	}
	w.Remove(entity, types)
	if s := w.byInstance[row.Instance]; s != nil {
		s.Remove(entity)
		if s.Len() == 0 {
			delete(w.byInstance, row.Instance)
		}
	}
	delete(w.rows, entity)
}

// Load indexes an entity read from the store.
func (w *World) Load(addr ledger.Address, e *coreds.Entity) {
	ri := coreds.RegistryInstanceAddress(e.Registry, e.Instance)
	w.Create(addr, ri, e.EntityID, e.Components.Types())
}

func store(m map[ledger.Address]*TypeStore, key ledger.Address) *TypeStore {
	s := m[key]
	if s == nil {
		s = NewTypeStore()
		m[key] = s
	}
	return s
}
