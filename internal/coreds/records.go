package coreds

import (
	"fmt"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/layout"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/sizing"
)

var (
	discRegistryInstance = layout.Discriminator("RegistryInstance")
	discEntity           = layout.Discriminator("Entity")
	discNFTLink          = layout.Discriminator("ARCNFT")
)

// Record sizes, discriminator included.
const (
	RegistryInstanceSize = layout.DiscriminatorSize + layout.KeySize + layout.U64Size + layout.U64Size
	NFTLinkSize          = layout.DiscriminatorSize + layout.KeySize + layout.KeySize
)

// RegistryInstance is one logical world owned by a registry.
type RegistryInstance struct {
	Registry ledger.Address
	Instance uint64
	// Entities counts entities ever created in this instance. It never
	// decreases.
	Entities uint64
}

func (ri *RegistryInstance) encode() []byte {
	w := layout.NewRecordWriter(discRegistryInstance, RegistryInstanceSize)
	w.WriteKey(ri.Registry)
	w.WriteU64(ri.Instance)
	w.WriteU64(ri.Entities)
	return w.Bytes()
}

func decodeRegistryInstance(data []byte) (*RegistryInstance, error) {
	r, err := layout.NewRecordReader(data, discRegistryInstance)
	if err != nil {
		return nil, fmt.Errorf("decode registry instance: %w", err)
	}
	ri := &RegistryInstance{
		Registry: r.ReadKey(),
		Instance: r.ReadU64(),
		Entities: r.ReadU64(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode registry instance: %w", err)
	}
	return ri, nil
}

// Entity is a bag of components inside one registry instance.
type Entity struct {
	EntityID   uint64
	Instance   uint64
	Registry   ledger.Address
	Components component.Set
}

// IsEmpty reports whether the entity holds no components.
func (e *Entity) IsEmpty() bool {
	return len(e.Components) == 0
}

// Capacity is the exact slot size the entity needs for its current set of
// components.
func (e *Entity) Capacity() (int, error) {
	return sizing.EntityCapacity(e.Components.Values())
}

func (e *Entity) encode() []byte {
	w := layout.NewRecordWriter(discEntity, sizing.EntryBase)
	w.WriteU64(e.EntityID)
	w.WriteU64(e.Instance)
	w.WriteKey(e.Registry)
	e.Components.Encode(w)
	return w.Bytes()
}

func decodeEntity(data []byte) (*Entity, error) {
	r, err := layout.NewRecordReader(data, discEntity)
	if err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	e := &Entity{
		EntityID: r.ReadU64(),
		Instance: r.ReadU64(),
		Registry: r.ReadKey(),
	}
	e.Components = component.DecodeSet(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return e, nil
}

// NFTLink binds an entity to an external token mint.
type NFTLink struct {
	Entity ledger.Address
	Mint   ledger.Address
}

func (l *NFTLink) encode() []byte {
	w := layout.NewRecordWriter(discNFTLink, NFTLinkSize)
	w.WriteKey(l.Entity)
	w.WriteKey(l.Mint)
	return w.Bytes()
}

func decodeNFTLink(data []byte) (*NFTLink, error) {
	r, err := layout.NewRecordReader(data, discNFTLink)
	if err != nil {
		return nil, fmt.Errorf("decode nft link: %w", err)
	}
	l := &NFTLink{Entity: r.ReadKey(), Mint: r.ReadKey()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode nft link: %w", err)
	}
	return l, nil
}
