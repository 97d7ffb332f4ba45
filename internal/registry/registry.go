// Package registry decides who may do what to the core data store. It keeps
// one authority per instance, the set of registered component schemas, and
// for each action bundle the instances and component types it was granted.
// Every request an action bundle makes is checked against those grants and
// then forwarded to the core data store under the registry's signer.
package registry

import (
	"errors"
	"fmt"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"go.uber.org/zap"
)

var (
	ErrAlreadyInitialized = fmt.Errorf("registry initialized: %w", ledger.ErrAlreadyExists)
	ErrNotInitialized     = fmt.Errorf("registry config: %w", ledger.ErrNotFound)
	ErrDuplicateSchema    = fmt.Errorf("component schema: %w", ledger.ErrAlreadyExists)
	ErrSchemaNotFound     = fmt.Errorf("component schema: %w", ledger.ErrNotFound)
	ErrCoreMismatch       = errors.New("core data store mismatch")
)

// Policy holds operator-level settings.
type Policy struct {
	// InstanceCreators restricts who may create instances. Empty means
	// anyone.
	InstanceCreators []ledger.Address
	MaxLocatorLen    int
}

// Service implements the registry program.
type Service struct {
	core     *coreds.Service
	creators map[ledger.Address]struct{}
	maxLoc   int
	log      *zap.Logger
}

func New(core *coreds.Service, policy Policy, log *zap.Logger) *Service {
	s := &Service{
		core:     core,
		creators: make(map[ledger.Address]struct{}, len(policy.InstanceCreators)),
		maxLoc:   policy.MaxLocatorLen,
		log:      log,
	}
	if s.maxLoc <= 0 {
		s.maxLoc = DefaultMaxLocatorLen
	}
	for _, a := range policy.InstanceCreators {
		s.creators[a] = struct{}{}
	}
	return s
}

func (s *Service) ID() ledger.Address { return ProgramID }

// Core returns the core data store this registry forwards to.
func (s *Service) Core() *coreds.Service { return s.core }

func (s *Service) signer(c *ledger.Context) ledger.Authority {
	return c.Sign([]byte(SeedSigner))
}

func (s *Service) deny(c *ledger.Context, op string, err error) error {
	s.log.Warn("權限檢查未通過",
		zap.String("op", op),
		zap.String("tx", c.TxID().String()),
		zap.Error(err),
	)
	return err
}

// Initialize creates the registry singleton bound to the core data store.
func (s *Service) Initialize(ctx *ledger.Context, coreDS ledger.Address) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		if coreDS != s.core.ID() {
			return fmt.Errorf("%w: %s", ErrCoreMismatch, coreDS.Short())
		}
		addr := ConfigAddress()
		if c.Exists(addr) {
			return ErrAlreadyInitialized
		}
		cfg := &Config{CoreDS: coreDS}
		if err := c.Allocate(addr, ConfigSize); err != nil {
			return err
		}
		if err := c.Write(addr, cfg.encode()); err != nil {
			return err
		}
		s.log.Info("註冊表已初始化", zap.String("core_ds", coreDS.Short()))
		return nil
	})
}

// InstanceRegistry creates instance and makes caller its authority.
func (s *Service) InstanceRegistry(ctx *ledger.Context, caller ledger.Authority, instance uint64) (ledger.Address, error) {
	var addr ledger.Address
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		if _, err := s.Config(c); err != nil {
			return err
		}
		if err := c.Verify(caller, caller.Key()); err != nil {
			return s.deny(c, "instance_registry", err)
		}
		if len(s.creators) > 0 {
			if _, ok := s.creators[caller.Key()]; !ok {
				return s.deny(c, "instance_registry",
					fmt.Errorf("%w: %s may not create instances", ledger.ErrUnauthorized, caller.Key().Short()))
			}
		}

		var err error
		addr, err = s.core.CreateRegistryInstance(c, s.signer(c), ProgramID, instance)
		if err != nil {
			return err
		}
		ia := &InstanceAuthority{Instance: instance, Authority: caller.Key()}
		iaAddr := InstanceAuthorityAddress(addr)
		if err := c.Allocate(iaAddr, InstanceAuthoritySize); err != nil {
			return err
		}
		if err := c.Write(iaAddr, ia.encode()); err != nil {
			return err
		}
		c.Emit(InstanceRegistered{Instance: instance, Address: addr, Authority: caller.Key()})
		s.log.Info("世界實例已註冊",
			zap.Uint64("instance", instance),
			zap.String("authority", caller.Key().Short()),
		)
		return nil
	})
	return addr, err
}

// RegisterComponentSchema registers a component kind by locator and returns
// its component type. Canonically equal locators collide.
func (s *Service) RegisterComponentSchema(ctx *ledger.Context, locator string) (component.Type, error) {
	canonical, err := CanonicalLocator(locator, s.maxLoc)
	if err != nil {
		return component.Type{}, err
	}
	addr := SchemaAddress(canonical)
	err = ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		cfg, err := s.Config(c)
		if err != nil {
			return err
		}
		if c.Exists(addr) {
			return fmt.Errorf("%q: %w", canonical, ErrDuplicateSchema)
		}
		cs := &ComponentSchema{Locator: canonical}
		if err := c.Allocate(addr, cs.size()); err != nil {
			return err
		}
		if err := c.Write(addr, cs.encode()); err != nil {
			return err
		}
		cfg.Components++
		if err := c.Write(ConfigAddress(), cfg.encode()); err != nil {
			return err
		}
		c.Emit(SchemaRegistered{Type: addr, Locator: canonical})
		s.log.Debug("元件結構已註冊", zap.String("locator", canonical), zap.String("type", addr.Short()))
		return nil
	})
	return addr, err
}

// instanceAuthority checks that registryInstance belongs to this registry
// and that authority is its administrator.
func (s *Service) instanceAuthority(c *ledger.Context, op string, authority ledger.Authority, registryInstance ledger.Address) (*coreds.RegistryInstance, error) {
	ri, err := s.core.RegistryInstance(c, registryInstance)
	if err != nil {
		return nil, err
	}
	if ri.Registry != ProgramID {
		return nil, s.deny(c, op, fmt.Errorf("%w: instance owned by registry %s", ledger.ErrUnauthorized, ri.Registry.Short()))
	}
	ia, err := s.InstanceAuthority(c, InstanceAuthorityAddress(registryInstance))
	if err != nil {
		return nil, err
	}
	if ia.Instance != ri.Instance {
		return nil, s.deny(c, op, fmt.Errorf("%w: authority record for instance %d, want %d", ledger.ErrUnauthorized, ia.Instance, ri.Instance))
	}
	if err := c.Verify(authority, ia.Authority); err != nil {
		return nil, s.deny(c, op, err)
	}
	return ri, nil
}

// RegisterActionBundle grants bundle its first instance. authority must be
// the instance authority of registryInstance.
func (s *Service) RegisterActionBundle(ctx *ledger.Context, authority ledger.Authority, registryInstance, bundle ledger.Address) (ledger.Address, error) {
	addr := RegistrationAddress(registryInstance, bundle)
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		ri, err := s.instanceAuthority(c, "register_action_bundle", authority, registryInstance)
		if err != nil {
			return err
		}
		reg := &Registration{ActionBundle: bundle, Instances: []uint64{ri.Instance}, CanMint: true}
		if err := c.Allocate(addr, reg.Size()); err != nil {
			return fmt.Errorf("register bundle %s: %w", bundle.Short(), err)
		}
		if err := c.Write(addr, reg.encode()); err != nil {
			return err
		}
		c.Emit(BundleRegistered{Registration: addr, Bundle: bundle, Instance: ri.Instance})
		s.log.Info("行動包已註冊",
			zap.String("bundle", bundle.Short()),
			zap.Uint64("instance", ri.Instance),
		)
		return nil
	})
	return addr, err
}

// GrantComponents adds component types to a registration. Every type must
// be a registered schema.
func (s *Service) GrantComponents(ctx *ledger.Context, authority ledger.Authority, registryInstance, bundle ledger.Address, types []component.Type) (*Registration, error) {
	var reg *Registration
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		if _, err := s.instanceAuthority(c, "grant_components", authority, registryInstance); err != nil {
			return err
		}
		for _, t := range types {
			if _, err := s.ComponentSchema(c, t); err != nil {
				return err
			}
		}
		var err error
		reg, err = s.regrant(c, RegistrationAddress(registryInstance, bundle), func(r *Registration) {
			r.Components = component.Union(r.Components, types)
		})
		return err
	})
	return reg, err
}

// GrantInstances adds instances to a registration. authority must
// administer the registration's instance and every instance being granted.
func (s *Service) GrantInstances(ctx *ledger.Context, authority ledger.Authority, registryInstance, bundle ledger.Address, instances []uint64) (*Registration, error) {
	var reg *Registration
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		const op = "grant_instances"
		if _, err := s.instanceAuthority(c, op, authority, registryInstance); err != nil {
			return err
		}
		for _, inst := range instances {
			if _, err := s.instanceAuthority(c, op, authority, InstanceAddress(inst)); err != nil {
				return fmt.Errorf("grant instance %d: %w", inst, err)
			}
		}
		var err error
		reg, err = s.regrant(c, RegistrationAddress(registryInstance, bundle), func(r *Registration) {
			r.Instances = unionInstances(r.Instances, instances)
		})
		return err
	})
	return reg, err
}

// regrant applies grow to the registration at addr and resizes it exactly.
func (s *Service) regrant(c *ledger.Context, addr ledger.Address, grow func(*Registration)) (*Registration, error) {
	reg, err := s.Registration(c, addr)
	if err != nil {
		return nil, err
	}
	grow(reg)
	if err := c.Resize(addr, reg.Size(), ledger.ResizeOptions{Zero: true}); err != nil {
		return nil, err
	}
	if err := c.Write(addr, reg.encode()); err != nil {
		return nil, err
	}
	c.Emit(GrantsChanged{Registration: addr, Instances: reg.Instances, Components: reg.Components})
	return reg, nil
}

// IsAuthorized reports whether every requested type is in granted, which
// must be sorted ascending.
func IsAuthorized(requested, granted []component.Type) bool {
	for _, t := range requested {
		if !component.Contains(granted, t) {
			return false
		}
	}
	return true
}

// bundleGrant loads the registration at addr and checks that bundle is the
// action bundle it was issued to.
func (s *Service) bundleGrant(c *ledger.Context, op string, bundle ledger.Authority, addr ledger.Address) (*Registration, error) {
	reg, err := s.Registration(c, addr)
	if err != nil {
		return nil, err
	}
	if err := c.Verify(bundle, reg.ActionBundle); err != nil {
		return nil, s.deny(c, op, err)
	}
	return reg, nil
}

// entityGrant additionally checks that entity belongs to this registry and
// to an instance the registration covers.
func (s *Service) entityGrant(c *ledger.Context, op string, bundle ledger.Authority, registration, entity ledger.Address) (*Registration, *coreds.Entity, error) {
	reg, err := s.bundleGrant(c, op, bundle, registration)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.core.Entity(c, entity)
	if err != nil {
		return nil, nil, err
	}
	if e.Registry != ProgramID {
		return nil, nil, s.deny(c, op, fmt.Errorf("%w: entity owned by registry %s", ledger.ErrUnauthorized, e.Registry.Short()))
	}
	if !reg.HasInstance(e.Instance) {
		return nil, nil, s.deny(c, op, fmt.Errorf("%w: instance %d not granted", ledger.ErrUnauthorized, e.Instance))
	}
	return reg, e, nil
}

func (s *Service) checkTypes(c *ledger.Context, op string, reg *Registration, types []component.Type) error {
	if !IsAuthorized(types, reg.Components) {
		return s.deny(c, op, fmt.Errorf("%w: component not granted", ledger.ErrUnauthorized))
	}
	return nil
}

// InitEntity creates an entity on behalf of bundle.
func (s *Service) InitEntity(ctx *ledger.Context, bundle ledger.Authority, registration, registryInstance ledger.Address, entityID uint64, components component.Set) (ledger.Address, error) {
	var addr ledger.Address
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		const op = "init_entity"
		reg, err := s.bundleGrant(c, op, bundle, registration)
		if err != nil {
			return err
		}
		ri, err := s.core.RegistryInstance(c, registryInstance)
		if err != nil {
			return err
		}
		if ri.Registry != ProgramID || !reg.HasInstance(ri.Instance) {
			return s.deny(c, op, fmt.Errorf("%w: instance %d not granted", ledger.ErrUnauthorized, ri.Instance))
		}
		if err := s.checkTypes(c, op, reg, components.Types()); err != nil {
			return err
		}
		addr, err = s.core.CreateEntity(c, s.signer(c), registryInstance, entityID, components)
		return err
	})
	return addr, err
}

// MintARCNFT links entity to mint on behalf of a bundle allowed to mint.
func (s *Service) MintARCNFT(ctx *ledger.Context, bundle ledger.Authority, registration, entity, mint ledger.Address) (ledger.Address, error) {
	var addr ledger.Address
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		const op = "mint_arcnft"
		reg, _, err := s.entityGrant(c, op, bundle, registration, entity)
		if err != nil {
			return err
		}
		if !reg.CanMint {
			return s.deny(c, op, fmt.Errorf("%w: bundle may not mint", ledger.ErrUnauthorized))
		}
		addr, err = s.core.LinkNFT(c, s.signer(c), entity, mint)
		return err
	})
	return addr, err
}

// AddComponents adds components to entity on behalf of bundle.
func (s *Service) AddComponents(ctx *ledger.Context, bundle ledger.Authority, registration, entity ledger.Address, entries []component.Entry) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		const op = "add_components"
		reg, _, err := s.entityGrant(c, op, bundle, registration, entity)
		if err != nil {
			return err
		}
		if err := s.checkTypes(c, op, reg, component.FromEntries(entries).Types()); err != nil {
			return err
		}
		return s.core.AddComponents(c, s.signer(c), entity, entries)
	})
}

// RemoveComponents removes components from entity on behalf of bundle.
func (s *Service) RemoveComponents(ctx *ledger.Context, bundle ledger.Authority, registration, beneficiary, entity ledger.Address, types []component.Type) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		const op = "remove_components"
		reg, _, err := s.entityGrant(c, op, bundle, registration, entity)
		if err != nil {
			return err
		}
		if err := s.checkTypes(c, op, reg, types); err != nil {
			return err
		}
		return s.core.RemoveComponents(c, s.signer(c), beneficiary, entity, types)
	})
}

// ModifyComponents replaces component payloads on behalf of bundle.
func (s *Service) ModifyComponents(ctx *ledger.Context, bundle ledger.Authority, registration, entity ledger.Address, updates []component.Update) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		const op = "modify_components"
		reg, _, err := s.entityGrant(c, op, bundle, registration, entity)
		if err != nil {
			return err
		}
		types := make([]component.Type, len(updates))
		for i, u := range updates {
			types[i] = u.Type
		}
		if err := s.checkTypes(c, op, reg, types); err != nil {
			return err
		}
		return s.core.ModifyComponents(c, s.signer(c), entity, updates)
	})
}

// RemoveEntity destroys an empty entity on behalf of bundle. Any bundle
// whose grant covers the entity's instance may do this; no component grant
// is needed because nothing is left to protect.
func (s *Service) RemoveEntity(ctx *ledger.Context, bundle ledger.Authority, registration, beneficiary, entity ledger.Address) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		_, e, err := s.entityGrant(c, "remove_entity", bundle, registration, entity)
		if err != nil {
			return err
		}
		if !e.IsEmpty() {
			return fmt.Errorf("remove entity %s: %w", entity.Short(), coreds.ErrNotEmpty)
		}
		return s.core.DestroyEntity(c, s.signer(c), beneficiary, entity)
	})
}

// Config reads the registry singleton.
func (s *Service) Config(c *ledger.Context) (*Config, error) {
	data, err := c.Load(ConfigAddress(), ProgramID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return decodeConfig(data)
}

// InstanceAuthority reads the authority record at addr.
func (s *Service) InstanceAuthority(c *ledger.Context, addr ledger.Address) (*InstanceAuthority, error) {
	data, err := c.Load(addr, ProgramID)
	if err != nil {
		return nil, fmt.Errorf("instance authority: %w", err)
	}
	return decodeInstanceAuthority(data)
}

// ComponentSchema reads the schema registered for t.
func (s *Service) ComponentSchema(c *ledger.Context, t component.Type) (*ComponentSchema, error) {
	data, err := c.Load(t, ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Short(), ErrSchemaNotFound)
	}
	cs, err := decodeComponentSchema(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Short(), ErrSchemaNotFound)
	}
	return cs, nil
}

// Registration reads the registration at addr.
func (s *Service) Registration(c *ledger.Context, addr ledger.Address) (*Registration, error) {
	data, err := c.Load(addr, ProgramID)
	if err != nil {
		return nil, fmt.Errorf("registration: %w", err)
	}
	return decodeRegistration(data)
}
