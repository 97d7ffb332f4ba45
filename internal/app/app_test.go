package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arcworks/arc/internal/bundle/metadata"
	"github.com/arcworks/arc/internal/bundle/script"
	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/config"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/persist"
	"github.com/arcworks/arc/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const componentsYAML = `
- name: metadata
  locator: arc://metadata
  note: token metadata
- name: stats
  locator: arc://stats
`

const spawnLua = `
function spawn(instance, id)
  local comps = {}
  comps[arc.schema("arc://stats")] = {max_size = 16, data = "hp=10"}
  return arc.init_entity(arc.registration(arc.instance(instance)), arc.instance(instance), id, comps)
end
`

var authority = ledger.HashAddress([]byte("operator"))

func testConfig(t *testing.T, driver string) *config.Config {
	dir := t.TempDir()
	table := filepath.Join(dir, "components.yaml")
	require.NoError(t, os.WriteFile(table, []byte(componentsYAML), 0o644))
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.Mkdir(scripts, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "spawner.lua"), []byte(spawnLua), 0o644))

	cfg := &config.Config{}
	cfg.Database.Driver = driver
	cfg.Database.DSN = filepath.Join(dir, "arc.db")
	cfg.Bundles = config.BundlesConfig{
		ComponentsTable: table,
		ScriptsDir:      scripts,
		Authority:       authority.String(),
		Instances:       []uint64{7, 9},
	}
	return cfg
}

// build assembles an App the same way the injector does.
func build(t *testing.T, cfg *config.Config) *App {
	ctx := context.Background()
	log := zap.NewNop()
	store := ProvideStore(cfg)
	rt := ProvideRuntime(store, log)
	bus := ProvideBus(rt)
	index := ProvideIndex(bus)
	core := coreds.New(log)
	reg, err := ProvideRegistry(core, cfg, log)
	require.NoError(t, err)
	md := metadata.New(reg, log)
	scripts, closeScripts, err := ProvideScripts(cfg, reg, log)
	require.NoError(t, err)
	t.Cleanup(closeScripts)
	table, err := ProvideSchemaTable(cfg)
	require.NoError(t, err)
	db, closeDB, err := ProvideDB(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(closeDB)
	return New(cfg, log, store, rt, bus, index, core, reg, md, scripts, table, db, ProvideSlotRepo(db))
}

func TestBootstrap(t *testing.T) {
	a := build(t, testConfig(t, ""))
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Slots)

	st, err := a.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{Schemas: 2, Instances: 2, Bundles: 4, Scripts: 1}, st)

	metadataType := registry.SchemaAddress("arc://metadata")
	statsType := registry.SchemaAddress("arc://stats")
	require.NoError(t, a.Runtime.View(context.Background(), func(c *ledger.Context) error {
		for _, inst := range []uint64{7, 9} {
			ri := registry.InstanceAddress(inst)
			ia, err := a.Registry.InstanceAuthority(c, registry.InstanceAuthorityAddress(ri))
			require.NoError(t, err)
			assert.Equal(t, authority, ia.Authority)

			reg, err := a.Registry.Registration(c, registry.RegistrationAddress(ri, a.Metadata.Identity()))
			require.NoError(t, err)
			assert.Equal(t, []component.Type{metadataType}, reg.Components)

			reg, err = a.Registry.Registration(c, registry.RegistrationAddress(ri, script.Identity("spawner")))
			require.NoError(t, err)
			assert.ElementsMatch(t, []component.Type{metadataType, statsType}, reg.Components)
		}

		cfg, err := a.Metadata.Config(c)
		require.NoError(t, err)
		typ, ok := cfg.Resolve("stats")
		assert.True(t, ok)
		assert.Equal(t, statsType, typ)
		return nil
	}))
}

func TestBootstrapTwice(t *testing.T) {
	a := build(t, testConfig(t, ""))
	_, err := a.Bootstrap(context.Background())
	require.NoError(t, err)
	n := a.Store.Len()

	_, err = a.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, a.Store.Len())
}

func TestBootstrapWithoutAuthority(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Bundles.Authority = ""
	a := build(t, cfg)

	st, err := a.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Schemas)
	assert.Zero(t, st.Bundles)
	assert.True(t, a.exists(registry.ConfigAddress()))
	assert.False(t, a.exists(registry.InstanceAddress(7)))
}

func TestBootstrapBadAuthority(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Bundles.Authority = "not-hex"
	_, err := build(t, cfg).Bootstrap(context.Background())
	assert.Error(t, err)
}

func TestScriptBundleAfterBootstrap(t *testing.T) {
	a := build(t, testConfig(t, ""))
	_, err := a.Bootstrap(context.Background())
	require.NoError(t, err)

	var out []string
	_, err = a.Runtime.Execute(context.Background(), "spawn", []ledger.Address{authority}, func(c *ledger.Context) error {
		var err error
		out, err = a.Scripts.Call(c, "spawner", "spawn", "7", "1")
		return err
	})
	require.NoError(t, err)
	entity := coreds.EntityAddress(1, registry.InstanceAddress(7))
	assert.Equal(t, []string{entity.String()}, out)
}

func TestRestoreFromDatabase(t *testing.T) {
	cfg := testConfig(t, persist.DriverSQLite)
	ctx := context.Background()

	first := build(t, cfg)
	_, err := first.Bootstrap(ctx)
	require.NoError(t, err)

	mint := ledger.HashAddress([]byte("mint"))
	ri := registry.InstanceAddress(7)
	_, err = first.Runtime.Execute(ctx, "mint", []ledger.Address{authority}, func(c *ledger.Context) error {
		_, err := first.Metadata.MintWithMetadata(c, ri, registry.RegistrationAddress(ri, first.Metadata.Identity()), 5, mint, &metadata.Metadata{
			UpdateAuthority: authority,
			Mint:            mint,
			Name:            "Relic",
			Symbol:          "RLC",
		})
		return err
	})
	require.NoError(t, err)

	upserts, deletes := first.Store.TakeDirty()
	_, err = first.Slots.SaveBatch(ctx, upserts, deletes)
	require.NoError(t, err)
	want := first.Store.Len()

	second := build(t, cfg)
	st, err := second.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, st.Restored)
	assert.Equal(t, want, second.Store.Len())
	assert.Equal(t, 1, st.Entities)
	assert.Equal(t, []ledger.Address{coreds.EntityAddress(5, ri)}, second.Index.Query(ri, nil))

	require.NoError(t, second.Runtime.View(ctx, func(c *ledger.Context) error {
		e, err := second.Core.Entity(c, coreds.EntityAddress(5, ri))
		require.NoError(t, err)
		assert.Equal(t, uint64(5), e.EntityID)
		return nil
	}))
}
