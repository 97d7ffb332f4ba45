// Package coreds is the core data store: registry instances, entities and
// their components, and entity-to-mint links. It holds no policy of its own.
// Every mutation must carry the signer authority of the registry that owns
// the target, and the registry decides who may ask for what.
package coreds

import (
	"errors"
	"fmt"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/sizing"
	"go.uber.org/zap"
)

var (
	ErrNotEmpty          = errors.New("entity still has components")
	ErrAlreadyLinked     = fmt.Errorf("entity already linked to mint: %w", ledger.ErrAlreadyExists)
	ErrComponentNotFound = fmt.Errorf("component: %w", ledger.ErrNotFound)
)

// Service implements the core data store program.
type Service struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Service {
	return &Service{log: log}
}

// ID returns the program id records are owned by.
func (s *Service) ID() ledger.Address { return ProgramID }

func (s *Service) authorize(c *ledger.Context, auth ledger.Authority, registry ledger.Address) error {
	if err := c.Verify(auth, RegistrySigner(registry)); err != nil {
		s.log.Warn("核心資料存取遭拒",
			zap.String("registry", registry.Short()),
			zap.String("tx", c.TxID().String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// CreateRegistryInstance creates the instance record for (registry,
// instance). auth must be the registry's signer.
func (s *Service) CreateRegistryInstance(ctx *ledger.Context, auth ledger.Authority, registry ledger.Address, instance uint64) (ledger.Address, error) {
	addr := RegistryInstanceAddress(registry, instance)
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		if err := s.authorize(c, auth, registry); err != nil {
			return err
		}
		ri := &RegistryInstance{Registry: registry, Instance: instance}
		if err := c.Allocate(addr, RegistryInstanceSize); err != nil {
			return fmt.Errorf("create registry instance %d: %w", instance, err)
		}
		if err := c.Write(addr, ri.encode()); err != nil {
			return err
		}
		c.Emit(InstanceCreated{Registry: registry, Instance: instance, Address: addr})
		s.log.Debug("世界實例已建立",
			zap.String("registry", registry.Short()),
			zap.Uint64("instance", instance),
		)
		return nil
	})
	return addr, err
}

// CreateEntity creates entity entityID inside registryInstance with an
// initial set of components, sized exactly for their declared sizes.
func (s *Service) CreateEntity(ctx *ledger.Context, auth ledger.Authority, registryInstance ledger.Address, entityID uint64, components component.Set) (ledger.Address, error) {
	addr := EntityAddress(entityID, registryInstance)
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		ri, err := s.RegistryInstance(c, registryInstance)
		if err != nil {
			return err
		}
		if err := s.authorize(c, auth, ri.Registry); err != nil {
			return err
		}
		for t, comp := range components {
			if err := comp.Validate(); err != nil {
				return fmt.Errorf("component %s: %w", t.Short(), err)
			}
		}

		e := &Entity{
			EntityID:   entityID,
			Instance:   ri.Instance,
			Registry:   ri.Registry,
			Components: components.Clone(),
		}
		capacity, err := e.Capacity()
		if err != nil {
			return fmt.Errorf("create entity %d: %w", entityID, err)
		}
		if err := c.Allocate(addr, capacity); err != nil {
			return fmt.Errorf("create entity %d: %w", entityID, err)
		}
		if err := c.Write(addr, e.encode()); err != nil {
			return err
		}

		ri.Entities++
		if err := c.Write(registryInstance, ri.encode()); err != nil {
			return err
		}
		c.Emit(EntityCreated{Registry: ri.Registry, Instance: ri.Instance, EntityID: entityID, Entity: addr, Types: components.Types()})
		s.log.Debug("實體已建立",
			zap.String("entity", addr.Short()),
			zap.Uint64("entity_id", entityID),
			zap.Uint64("instance", ri.Instance),
			zap.Int("components", len(components)),
		)
		return nil
	})
	return addr, err
}

// LinkNFT records that entity is represented by mint. A link is created
// once and never changes.
func (s *Service) LinkNFT(ctx *ledger.Context, auth ledger.Authority, entity, mint ledger.Address) (ledger.Address, error) {
	addr := NFTLinkAddress(mint, entity)
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		e, err := s.Entity(c, entity)
		if err != nil {
			return err
		}
		if err := s.authorize(c, auth, e.Registry); err != nil {
			return err
		}
		if c.Exists(addr) {
			return fmt.Errorf("link %s: %w", addr.Short(), ErrAlreadyLinked)
		}
		link := &NFTLink{Entity: entity, Mint: mint}
		if err := c.Allocate(addr, NFTLinkSize); err != nil {
			return err
		}
		if err := c.Write(addr, link.encode()); err != nil {
			return err
		}
		c.Emit(NFTLinked{Entity: entity, Mint: mint, Link: addr})
		return nil
	})
	return addr, err
}

// AddComponents inserts components into entity, growing its storage by
// their declared sizes. When a type is already present the new value
// replaces it and the old declared size is released in the same resize.
func (s *Service) AddComponents(ctx *ledger.Context, auth ledger.Authority, entity ledger.Address, entries []component.Entry) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		e, err := s.Entity(c, entity)
		if err != nil {
			return err
		}
		if err := s.authorize(c, auth, e.Registry); err != nil {
			return err
		}
		additions := component.FromEntries(entries)
		var overwritten []component.Type
		for t, comp := range additions {
			if err := comp.Validate(); err != nil {
				return fmt.Errorf("component %s: %w", t.Short(), err)
			}
			if _, ok := e.Components[t]; ok {
				overwritten = append(overwritten, t)
			}
		}
		released, err := sizing.RemovedSize(e.Components, overwritten)
		if err != nil {
			return err
		}
		capacity, err := c.Capacity(entity)
		if err != nil {
			return err
		}
		added, err := sizing.ComponentSetSize(additions.Values())
		if err != nil {
			return err
		}
		if capacity, err = sizing.Adjust(capacity, added, released); err != nil {
			return err
		}

		for t, comp := range additions {
			e.Components[t] = comp
		}
		if err := s.store(c, entity, e, capacity, ledger.ResizeOptions{Zero: true}); err != nil {
			return err
		}
		c.Emit(ComponentsAdded{Entity: entity, Types: additions.Types()})
		return nil
	})
}

// RemoveComponents deletes keys from entity and shrinks its storage by their
// declared sizes. Freed bytes go to beneficiary. Every key must be present.
func (s *Service) RemoveComponents(ctx *ledger.Context, auth ledger.Authority, beneficiary, entity ledger.Address, keys []component.Type) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		e, err := s.Entity(c, entity)
		if err != nil {
			return err
		}
		if err := s.authorize(c, auth, e.Registry); err != nil {
			return err
		}
		keys = component.Dedup(keys)
		released, err := sizing.RemovedSize(e.Components, keys)
		if err != nil {
			return err
		}
		capacity, err := c.Capacity(entity)
		if err != nil {
			return err
		}
		if capacity, err = sizing.Adjust(capacity, 0, released); err != nil {
			return err
		}
		for _, k := range keys {
			delete(e.Components, k)
		}
		if err := s.store(c, entity, e, capacity, ledger.ResizeOptions{Beneficiary: beneficiary}); err != nil {
			return err
		}
		c.Emit(ComponentsRemoved{Entity: entity, Types: keys})
		return nil
	})
}

// ModifyComponents replaces payloads of existing components. Declared sizes
// are unchanged, so storage is never resized.
func (s *Service) ModifyComponents(ctx *ledger.Context, auth ledger.Authority, entity ledger.Address, updates []component.Update) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		e, err := s.Entity(c, entity)
		if err != nil {
			return err
		}
		if err := s.authorize(c, auth, e.Registry); err != nil {
			return err
		}
		types := make([]component.Type, 0, len(updates))
		for _, u := range updates {
			comp, ok := e.Components[u.Type]
			if !ok {
				return fmt.Errorf("modify %s: %w", u.Type.Short(), ErrComponentNotFound)
			}
			comp.Data = u.Data
			if err := comp.Validate(); err != nil {
				return fmt.Errorf("modify %s: %w", u.Type.Short(), err)
			}
			e.Components[u.Type] = comp
			types = append(types, u.Type)
		}
		capacity, err := c.Capacity(entity)
		if err != nil {
			return err
		}
		if err := s.store(c, entity, e, capacity, ledger.ResizeOptions{}); err != nil {
			return err
		}
		c.Emit(ComponentsModified{Entity: entity, Types: component.Dedup(types)})
		return nil
	})
}

// DestroyEntity closes an empty entity and returns its storage to
// beneficiary.
func (s *Service) DestroyEntity(ctx *ledger.Context, auth ledger.Authority, beneficiary, entity ledger.Address) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		e, err := s.Entity(c, entity)
		if err != nil {
			return err
		}
		if err := s.authorize(c, auth, e.Registry); err != nil {
			return err
		}
		if !e.IsEmpty() {
			return fmt.Errorf("destroy %s: %w (%d left)", entity.Short(), ErrNotEmpty, len(e.Components))
		}
		if err := c.Close(entity, beneficiary); err != nil {
			return err
		}
		c.Emit(EntityDestroyed{Entity: entity, Beneficiary: beneficiary})
		s.log.Debug("實體已銷毀", zap.String("entity", entity.Short()))
		return nil
	})
}

// store resizes the entity slot to capacity if needed and writes e.
func (s *Service) store(c *ledger.Context, addr ledger.Address, e *Entity, capacity int, opts ledger.ResizeOptions) error {
	current, err := c.Capacity(addr)
	if err != nil {
		return err
	}
	if capacity != current {
		if err := c.Resize(addr, capacity, opts); err != nil {
			return err
		}
	}
	return c.Write(addr, e.encode())
}

// RegistryInstance reads the instance record at addr.
func (s *Service) RegistryInstance(c *ledger.Context, addr ledger.Address) (*RegistryInstance, error) {
	data, err := c.Load(addr, ProgramID)
	if err != nil {
		return nil, fmt.Errorf("registry instance: %w", err)
	}
	return decodeRegistryInstance(data)
}

// Entity reads the entity record at addr.
func (s *Service) Entity(c *ledger.Context, addr ledger.Address) (*Entity, error) {
	data, err := c.Load(addr, ProgramID)
	if err != nil {
		return nil, fmt.Errorf("entity: %w", err)
	}
	return decodeEntity(data)
}

// NFTLink reads the link record at addr.
func (s *Service) NFTLink(c *ledger.Context, addr ledger.Address) (*NFTLink, error) {
	data, err := c.Load(addr, ProgramID)
	if err != nil {
		return nil, fmt.Errorf("nft link: %w", err)
	}
	return decodeNFTLink(data)
}
