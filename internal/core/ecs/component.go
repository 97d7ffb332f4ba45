package ecs

import "github.com/arcworks/arc/internal/ledger"

// TypeStore is the set of entities carrying one component type.
type TypeStore struct {
	data map[ledger.Address]struct{}
}

func NewTypeStore() *TypeStore {
	return &TypeStore{
		data: make(map[ledger.Address]struct{}, 256),
	}
}

func (s *TypeStore) Add(entity ledger.Address) {
	s.data[entity] = struct{}{}
}

func (s *TypeStore) Remove(entity ledger.Address) {
	delete(s.data, entity)
}

func (s *TypeStore) Has(entity ledger.Address) bool {
	_, ok := s.data[entity]
	return ok
}

func (s *TypeStore) Len() int {
	return len(s.data)
}

func (s *TypeStore) Each(fn func(ledger.Address)) {
	for entity := range s.data {
		fn(entity)
	}
}
