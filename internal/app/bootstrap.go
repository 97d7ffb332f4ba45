package app

import (
	"context"
	"fmt"

	"github.com/arcworks/arc/internal/bundle/metadata"
	"github.com/arcworks/arc/internal/bundle/script"
	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/registry"
	"go.uber.org/zap"
)

// Stats summarises what Bootstrap found and created.
type Stats struct {
	Restored  int // slots loaded from the database
	Schemas   int // component schemas in the table
	Instances int // configured instances
	Bundles   int // bundle registrations across all instances
	Scripts   int // loaded script bundles
	Entities  int // entities in the index
}

// grant is the component access a built-in bundle receives in every
// configured instance.
type grant struct {
	identity ledger.Address
	types    []component.Type
}

// Bootstrap restores persisted slots and then brings the store to the
// configured state. Every step skips what already exists or is idempotent,
// so it is safe to run on every start.
func (a *App) Bootstrap(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	if a.Slots != nil {
		recs, err := a.Slots.LoadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore slots: %w", err)
		}
		a.Store.Restore(recs)
		st.Restored = len(recs)
	}

	var authority ledger.Address
	if a.Config.Bundles.Authority != "" {
		var err error
		if authority, err = ledger.ParseAddress(a.Config.Bundles.Authority); err != nil {
			return nil, fmt.Errorf("bundle authority: %w", err)
		}
	}
	var signers []ledger.Address
	if !authority.IsZero() {
		signers = []ledger.Address{authority}
	}
	exec := func(name string, fn func(c *ledger.Context) error) error {
		_, err := a.Runtime.Execute(ctx, name, signers, fn)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	if !a.exists(registry.ConfigAddress()) {
		if err := exec("bootstrap_registry", func(c *ledger.Context) error {
			return a.Registry.Initialize(c, coreds.ProgramID)
		}); err != nil {
			return nil, err
		}
		a.Log.Info("註冊表已初始化")
	}

	types, err := a.registerSchemas(exec)
	if err != nil {
		return nil, err
	}
	st.Schemas = len(types)

	if authority.IsZero() {
		a.Log.Warn("未設定 bundles.authority，略過實例與行動包初始化")
		return st, a.reindex(ctx, st)
	}
	withAuth := func(name string, fn func(c *ledger.Context, auth ledger.Authority) error) error {
		return exec(name, func(c *ledger.Context) error {
			auth, err := c.Signer(authority)
			if err != nil {
				return err
			}
			return fn(c, auth)
		})
	}

	for _, id := range a.Config.Bundles.Instances {
		if a.exists(registry.InstanceAddress(id)) {
			continue
		}
		if err := withAuth("bootstrap_instance", func(c *ledger.Context, auth ledger.Authority) error {
			_, err := a.Registry.InstanceRegistry(c, auth, id)
			return err
		}); err != nil {
			return nil, err
		}
	}
	st.Instances = len(a.Config.Bundles.Instances)

	var metadataTypes []component.Type
	if t, ok := types[metadata.ComponentName]; ok {
		metadataTypes = []component.Type{t}
	}
	all := make([]component.Type, 0, len(types))
	for _, t := range types {
		all = append(all, t)
	}
	component.SortTypes(all)

	grants := []grant{{a.Metadata.Identity(), metadataTypes}}
	if a.Scripts != nil {
		for _, name := range a.Scripts.Scripts() {
			grants = append(grants, grant{script.Identity(name), all})
		}
		st.Scripts = len(a.Scripts.Scripts())
	}

	for _, id := range a.Config.Bundles.Instances {
		ri := registry.InstanceAddress(id)
		for _, g := range grants {
			if err := withAuth("bootstrap_bundle", func(c *ledger.Context, auth ledger.Authority) error {
				if !c.Exists(registry.RegistrationAddress(ri, g.identity)) {
					if _, err := a.Registry.RegisterActionBundle(c, auth, ri, g.identity); err != nil {
						return err
					}
				}
				if len(g.types) == 0 {
					return nil
				}
				_, err := a.Registry.GrantComponents(c, auth, ri, g.identity, g.types)
				return err
			}); err != nil {
				return nil, err
			}
			st.Bundles++
		}
	}

	if err := withAuth("bootstrap_metadata", func(c *ledger.Context, auth ledger.Authority) error {
		if !c.Exists(metadata.ConfigAddress()) {
			return a.Metadata.Initialize(c, auth, types)
		}
		return a.Metadata.MapComponents(c, auth, types)
	}); err != nil {
		return nil, err
	}

	if err := a.reindex(ctx, st); err != nil {
		return nil, err
	}
	a.Log.Info("啟動初始化完成",
		zap.Int("restored", st.Restored),
		zap.Int("schemas", st.Schemas),
		zap.Int("instances", st.Instances),
		zap.Int("bundles", st.Bundles),
		zap.Int("entities", st.Entities),
	)
	return st, nil
}

// registerSchemas registers every table entry not yet known and returns
// the component type of each name.
func (a *App) registerSchemas(exec func(string, func(*ledger.Context) error) error) (map[string]component.Type, error) {
	maxLen := a.Config.Registry.MaxLocatorLen
	if maxLen <= 0 {
		maxLen = registry.DefaultMaxLocatorLen
	}
	types := make(map[string]component.Type, a.Table.Count())
	var pending []metadata.SchemaEntry
	for _, e := range a.Table.Entries() {
		canonical, err := registry.CanonicalLocator(e.Locator, maxLen)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", e.Name, err)
		}
		t := registry.SchemaAddress(canonical)
		types[e.Name] = t
		if !a.exists(t) {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return types, nil
	}
	err := exec("bootstrap_schemas", func(c *ledger.Context) error {
		for _, e := range pending {
			// Two names may share a locator.
			if c.Exists(types[e.Name]) {
				continue
			}
			if _, err := a.Registry.RegisterComponentSchema(c, e.Locator); err != nil {
				return fmt.Errorf("component %q: %w", e.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return types, nil
}

func (a *App) exists(addr ledger.Address) bool {
	_, ok := a.Store.Get(addr)
	return ok
}

func (a *App) reindex(ctx context.Context, st *Stats) error {
	n, err := a.Index.Rebuild(ctx, a.Runtime, a.Core)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	st.Entities = n
	return nil
}
