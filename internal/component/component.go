// Package component defines the schema-less component values stored on
// entities. The store never interprets component payloads; it only enforces
// the declared maximum size of each one.
package component

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/arcworks/arc/internal/layout"
	"github.com/arcworks/arc/internal/ledger"
)

// ErrPayloadTooLarge is returned when a payload does not fit its declared
// maximum size.
var ErrPayloadTooLarge = errors.New("payload exceeds declared max size")

// EntryOverhead is the fixed cost of one component inside an entity record:
// 32-byte type key, 8-byte declared size, 4-byte payload length prefix.
const EntryOverhead = layout.KeySize + layout.U64Size + layout.LenPrefixSize

// Type identifies a component kind. It is the address of the registered
// component schema.
type Type = ledger.Address

// Serialized is one component value: an opaque payload and the size reserved
// for it at insertion. MaxSize never changes after insertion.
type Serialized struct {
	MaxSize uint64
	Data    []byte
}

// Validate checks the payload against the declared size.
func (c Serialized) Validate() error {
	if uint64(len(c.Data)) > c.MaxSize {
		return fmt.Errorf("%w: %d bytes, declared %d", ErrPayloadTooLarge, len(c.Data), c.MaxSize)
	}
	return nil
}

// Entry pairs a component with its type, for ordered requests.
type Entry struct {
	Type      Type
	Component Serialized
}

// Update replaces the payload of an existing component.
type Update struct {
	Type Type
	Data []byte
}

// Set maps component types to values.
type Set map[Type]Serialized

// Types returns the keys in ascending order.
func (s Set) Types() []Type {
	out := make([]Type, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	SortTypes(out)
	return out
}

// Values returns the components ordered by type.
func (s Set) Values() []Serialized {
	out := make([]Serialized, 0, len(s))
	for _, t := range s.Types() {
		out = append(out, s[t])
	}
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for t, c := range s {
		out[t] = Serialized{MaxSize: c.MaxSize, Data: bytes.Clone(c.Data)}
	}
	return out
}

// Encode writes the set as a u32 count followed by entries in type order.
func (s Set) Encode(w *layout.Writer) {
	w.WriteU32(uint32(len(s)))
	for _, t := range s.Types() {
		c := s[t]
		w.WriteKey(t)
		w.WriteU64(c.MaxSize)
		w.WriteBytes(c.Data)
	}
}

// DecodeSet reads a set written by Encode.
func DecodeSet(r *layout.Reader) Set {
	n := r.Count(EntryOverhead)
	s := make(Set, n)
	for i := 0; i < n; i++ {
		t := Type(r.ReadKey())
		maxSize := r.ReadU64()
		data := r.ReadBytes()
		if r.Err() != nil {
			return s
		}
		s[t] = Serialized{MaxSize: maxSize, Data: data}
	}
	return s
}

// EncodeTypes writes ts as a u32 count followed by keys in ascending order.
func EncodeTypes(w *layout.Writer, ts []Type) {
	sorted := Dedup(ts)
	w.WriteU32(uint32(len(sorted)))
	for _, t := range sorted {
		w.WriteKey(t)
	}
}

// DecodeTypes reads a list written by EncodeTypes.
func DecodeTypes(r *layout.Reader) []Type {
	n := r.Count(layout.KeySize)
	out := make([]Type, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.ReadKey())
	}
	return out
}

// FromEntries builds a set; later entries win on duplicate types.
func FromEntries(entries []Entry) Set {
	s := make(Set, len(entries))
	for _, e := range entries {
		s[e.Type] = e.Component
	}
	return s
}

// SortTypes orders types ascending by their bytes.
func SortTypes(ts []Type) {
	sort.Slice(ts, func(i, j int) bool { return bytes.Compare(ts[i][:], ts[j][:]) < 0 })
}

// SortUpdates orders updates by type.
func SortUpdates(us []Update) {
	sort.Slice(us, func(i, j int) bool { return bytes.Compare(us[i].Type[:], us[j].Type[:]) < 0 })
}

// Dedup returns the distinct types of ts in ascending order.
func Dedup(ts []Type) []Type {
	out := append([]Type(nil), ts...)
	SortTypes(out)
	n := 0
	for i, t := range out {
		if i == 0 || t != out[n-1] {
			out[n] = t
			n++
		}
	}
	return out[:n]
}

// Contains reports whether t is in the ascending slice sorted.
func Contains(sorted []Type, t Type) bool {
	i := sort.Search(len(sorted), func(i int) bool { return bytes.Compare(sorted[i][:], t[:]) >= 0 })
	return i < len(sorted) && sorted[i] == t
}

// Union merges two ascending type slices into a new ascending slice without
// duplicates.
func Union(a, b []Type) []Type {
	return Dedup(append(append([]Type(nil), a...), b...))
}
