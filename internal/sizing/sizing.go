// Package sizing computes exact storage budgets for entity records.
//
// Every figure is derived from declared component sizes, never from current
// payload lengths, so an entity's capacity is known before any payload is
// written and stays valid across in-place modifications.
package sizing

import (
	"fmt"
	"math"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/layout"
	"github.com/arcworks/arc/internal/ledger"
)

// ComponentOverhead is the per-component cost on top of its declared size.
const ComponentOverhead = component.EntryOverhead

// EntryBase is the size of an empty entity record: discriminator, entity id,
// instance, registry, component count.
const EntryBase = layout.DiscriminatorSize + layout.U64Size + layout.U64Size + layout.KeySize + layout.LenPrefixSize

// MaxDeclaredSize bounds a single component's declared size. Slot ceilings
// are far below it; the bound keeps every sum below in range.
const MaxDeclaredSize = math.MaxUint32

// ErrKeyNotFound is returned when a component to be removed is absent.
var ErrKeyNotFound = fmt.Errorf("component key: %w", ledger.ErrNotFound)

// add returns a+b, failing instead of wrapping.
func add(a, b int) (int, error) {
	if b > math.MaxInt-a {
		return 0, fmt.Errorf("%w: %d + %d bytes", ledger.ErrSizeOverflow, a, b)
	}
	return a + b, nil
}

func footprint(c component.Serialized) (int, error) {
	if c.MaxSize > MaxDeclaredSize {
		return 0, fmt.Errorf("%w: component declares %d bytes, max %d", ledger.ErrSizeOverflow, c.MaxSize, uint64(MaxDeclaredSize))
	}
	return int(c.MaxSize) + ComponentOverhead, nil
}

// ComponentSetSize is the storage needed for components. It fails with
// ledger.ErrSizeOverflow if a declared size is out of range.
func ComponentSetSize(components []component.Serialized) (int, error) {
	total := 0
	for _, c := range components {
		n, err := footprint(c)
		if err != nil {
			return 0, err
		}
		if total, err = add(total, n); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// RemovedSize is the storage released by removing keys from existing. It
// fails if any key is absent; there is no partial result.
func RemovedSize(existing component.Set, keys []component.Type) (int, error) {
	total := 0
	for _, k := range keys {
		c, ok := existing[k]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, k.Short())
		}
		n, err := footprint(c)
		if err != nil {
			return 0, err
		}
		if total, err = add(total, n); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// EntityCapacity is the full slot capacity of an entity holding components.
func EntityCapacity(components []component.Serialized) (int, error) {
	n, err := ComponentSetSize(components)
	if err != nil {
		return 0, err
	}
	return add(EntryBase, n)
}

// Adjust applies added and released bytes to an entity capacity. The result
// never drops below EntryBase.
func Adjust(capacity, added, released int) (int, error) {
	grown, err := add(capacity, added)
	if err != nil {
		return 0, err
	}
	if released < 0 || grown-released < EntryBase {
		return 0, fmt.Errorf("%w: release %d of %d bytes", ledger.ErrSizeOverflow, released, grown)
	}
	return grown - released, nil
}
