package sizing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/layout"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeOf(name string) component.Type {
	return ledger.HashAddress([]byte(name))
}

func setSize(t *testing.T, comps []component.Serialized) int {
	n, err := ComponentSetSize(comps)
	require.NoError(t, err)
	return n
}

func TestComponentSetSize(t *testing.T) {
	assert.Equal(t, 0, setSize(t, nil))
	assert.Equal(t, 44, setSize(t, []component.Serialized{{MaxSize: 0}}))
	got := setSize(t, []component.Serialized{{MaxSize: 100}, {MaxSize: 64, Data: []byte{1, 2, 3}}})
	assert.Equal(t, 100+64+2*44, got, "declared sizes, not payload lengths")
}

func TestDeclaredSizeBound(t *testing.T) {
	_, err := ComponentSetSize([]component.Serialized{{MaxSize: 1 << 63}, {MaxSize: 1 << 63}})
	assert.ErrorIs(t, err, ledger.ErrSizeOverflow)

	_, err = EntityCapacity([]component.Serialized{{MaxSize: MaxDeclaredSize + 1}})
	assert.ErrorIs(t, err, ledger.ErrSizeOverflow)

	n, err := ComponentSetSize([]component.Serialized{{MaxSize: MaxDeclaredSize}})
	require.NoError(t, err)
	assert.Equal(t, MaxDeclaredSize+ComponentOverhead, n)

	existing := component.Set{typeOf("a"): {MaxSize: 1 << 63}}
	_, err = RemovedSize(existing, []component.Type{typeOf("a")})
	assert.ErrorIs(t, err, ledger.ErrSizeOverflow)
}

func TestAdjust(t *testing.T) {
	got, err := Adjust(EntryBase+50, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, EntryBase+100, got)

	_, err = Adjust(EntryBase, 0, 1)
	assert.ErrorIs(t, err, ledger.ErrSizeOverflow, "capacity never drops below an empty entity")
	_, err = Adjust(math.MaxInt-1, 2, 0)
	assert.ErrorIs(t, err, ledger.ErrSizeOverflow)
}

func TestComponentSetSizeIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		comps := make([]component.Serialized, rng.Intn(12))
		for i := range comps {
			comps[i] = component.Serialized{MaxSize: uint64(rng.Intn(4096))}
		}
		want := setSize(t, comps)
		rng.Shuffle(len(comps), func(i, j int) { comps[i], comps[j] = comps[j], comps[i] })
		assert.Equal(t, want, setSize(t, comps))
	}
}

func TestRemovedSizeMatchesAddedSize(t *testing.T) {
	existing := component.Set{
		typeOf("a"): {MaxSize: 10},
		typeOf("b"): {MaxSize: 20, Data: []byte{1}},
		typeOf("c"): {MaxSize: 30},
	}
	got, err := RemovedSize(existing, []component.Type{typeOf("a"), typeOf("c")})
	require.NoError(t, err)
	assert.Equal(t, setSize(t, []component.Serialized{existing[typeOf("a")], existing[typeOf("c")]}), got)
}

func TestRemovedSizeMissingKey(t *testing.T) {
	existing := component.Set{typeOf("a"): {MaxSize: 10}}
	got, err := RemovedSize(existing, []component.Type{typeOf("a"), typeOf("missing")})
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Zero(t, got)
}

func TestEntityCapacityBoundsEncoding(t *testing.T) {
	set := component.Set{
		typeOf("a"): {MaxSize: 64, Data: make([]byte, 64)},
		typeOf("b"): {MaxSize: 8},
	}
	w := layout.NewRecordWriter(layout.Discriminator("Entity"), 0)
	w.WriteU64(1)
	w.WriteU64(2)
	w.WriteKey(typeOf("registry"))
	set.Encode(w)
	capacity, err := EntityCapacity(set.Values())
	require.NoError(t, err)
	assert.LessOrEqual(t, w.Len(), capacity)
	assert.Equal(t, 60, EntryBase)
}
