// Package metadata is the reference action bundle. It mints entities that
// carry a single metadata component and links each one to a token mint, all
// in one unit of work.
package metadata

import (
	"errors"
	"fmt"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/registry"
	"go.uber.org/zap"
)

// ComponentName is the component name the bundle writes.
const ComponentName = "metadata"

var (
	ErrInvalidMetadata = errors.New("invalid metadata")
	ErrUnmapped        = fmt.Errorf("component name not mapped: %w", ledger.ErrNotFound)
	ErrNotInitialized  = fmt.Errorf("metadata bundle config: %w", ledger.ErrNotFound)
)

// Minted is emitted when an entity is minted with metadata.
type Minted struct {
	Entity ledger.Address
	Mint   ledger.Address
	Link   ledger.Address
	Name   string
}

// Service implements the metadata bundle program.
type Service struct {
	reg *registry.Service
	log *zap.Logger
}

func New(reg *registry.Service, log *zap.Logger) *Service {
	return &Service{reg: reg, log: log}
}

func (s *Service) ID() ledger.Address { return ProgramID }

// Identity is the key registrations for this bundle are issued to.
func (s *Service) Identity() ledger.Address { return ConfigAddress() }

// Initialize creates the bundle config. authority becomes its
// administrator; components maps component names to registered types.
func (s *Service) Initialize(ctx *ledger.Context, authority ledger.Authority, components map[string]component.Type) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		if err := c.Verify(authority, authority.Key()); err != nil {
			return err
		}
		addr := ConfigAddress()
		if c.Exists(addr) {
			return fmt.Errorf("metadata bundle config: %w", ledger.ErrAlreadyExists)
		}
		cfg := &Config{Authority: authority.Key(), Components: hashNames(components)}
		if err := c.Allocate(addr, cfg.Size()); err != nil {
			return err
		}
		if err := c.Write(addr, cfg.encode()); err != nil {
			return err
		}
		s.log.Info("元資料行動包已初始化",
			zap.String("authority", authority.Key().Short()),
			zap.Int("components", len(cfg.Components)),
		)
		return nil
	})
}

// MapComponents adds or replaces name mappings. Only the config authority
// may do this.
func (s *Service) MapComponents(ctx *ledger.Context, authority ledger.Authority, components map[string]component.Type) error {
	return ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		cfg, err := s.Config(c)
		if err != nil {
			return err
		}
		if err := c.Verify(authority, cfg.Authority); err != nil {
			return err
		}
		for k, t := range hashNames(components) {
			cfg.Components[k] = t
		}
		addr := ConfigAddress()
		if err := c.Resize(addr, cfg.Size(), ledger.ResizeOptions{Zero: true}); err != nil {
			return err
		}
		return c.Write(addr, cfg.encode())
	})
}

func hashNames(components map[string]component.Type) map[[32]byte]component.Type {
	out := make(map[[32]byte]component.Type, len(components))
	for name, t := range components {
		out[NameHash(name)] = t
	}
	return out
}

// MintWithMetadata creates entity entityID in registryInstance holding md
// and links it to mint. Either both happen or neither does.
func (s *Service) MintWithMetadata(ctx *ledger.Context, registryInstance, registration ledger.Address, entityID uint64, mint ledger.Address, md *Metadata) (ledger.Address, error) {
	if err := md.Validate(); err != nil {
		return ledger.Address{}, err
	}
	var entity ledger.Address
	err := ctx.Invoke(ProgramID, func(c *ledger.Context) error {
		cfg, err := s.Config(c)
		if err != nil {
			return err
		}
		typ, ok := cfg.Resolve(ComponentName)
		if !ok {
			return fmt.Errorf("%q: %w", ComponentName, ErrUnmapped)
		}
		signer := c.Sign([]byte(SeedSigner))
		components := component.Set{typ: {MaxSize: MaxSize, Data: md.Encode()}}
		entity, err = s.reg.InitEntity(c, signer, registration, registryInstance, entityID, components)
		if err != nil {
			return fmt.Errorf("init entity %d: %w", entityID, err)
		}
		link, err := s.reg.MintARCNFT(c, signer, registration, entity, mint)
		if err != nil {
			return fmt.Errorf("mint %s: %w", mint.Short(), err)
		}
		c.Emit(Minted{Entity: entity, Mint: mint, Link: link, Name: md.Name})
		s.log.Debug("實體已鑄造",
			zap.Uint64("entity_id", entityID),
			zap.String("mint", mint.Short()),
		)
		return nil
	})
	return entity, err
}

// Config reads the bundle singleton.
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
