package app

import (
	"context"
	"fmt"

	"github.com/arcworks/arc/internal/bundle/metadata"
	"github.com/arcworks/arc/internal/bundle/script"
	"github.com/arcworks/arc/internal/config"
	"github.com/arcworks/arc/internal/core/ecs"
	"github.com/arcworks/arc/internal/core/event"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/persist"
	"github.com/arcworks/arc/internal/registry"
	"github.com/google/wire"
	"go.uber.org/zap"
)

// ProviderSet builds an App from a config and a logger.
var ProviderSet = wire.NewSet(
	ProvideStore,
	ProvideRuntime,
	ProvideBus,
	ProvideIndex,
	coreds.New,
	ProvideRegistry,
	metadata.New,
	ProvideScripts,
	ProvideSchemaTable,
	ProvideDB,
	ProvideSlotRepo,
	New,
)

func ProvideStore(cfg *config.Config) *ledger.Store {
	return ledger.NewStore(cfg.Ledger.Store())
}

func ProvideRuntime(store *ledger.Store, log *zap.Logger) *ledger.Runtime {
	return ledger.NewRuntime(store, log)
}

// ProvideBus creates the event bus and feeds it every committed receipt.
func ProvideBus(rt *ledger.Runtime) *event.Bus {
	bus := event.NewBus()
	rt.OnCommit(event.Forward(bus))
	return bus
}

// ProvideIndex creates the entity index and keeps it current from bus.
func ProvideIndex(bus *event.Bus) *ecs.World {
	w := ecs.NewWorld()
	w.Attach(bus)
	return w
}

func ProvideRegistry(core *coreds.Service, cfg *config.Config, log *zap.Logger) (*registry.Service, error) {
	creators, err := cfg.Registry.Creators()
	if err != nil {
		return nil, err
	}
	return registry.New(core, registry.Policy{
		InstanceCreators: creators,
		MaxLocatorLen:    cfg.Registry.MaxLocatorLen,
	}, log), nil
}

func ProvideScripts(cfg *config.Config, reg *registry.Service, log *zap.Logger) (*script.Engine, func(), error) {
	e, err := script.NewEngine(cfg.Bundles.ScriptsDir, reg, log)
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}

// ProvideSchemaTable loads the component table. No path means no
// components are registered at bootstrap.
func ProvideSchemaTable(cfg *config.Config) (*metadata.SchemaTable, error) {
	if cfg.Bundles.ComponentsTable == "" {
		return &metadata.SchemaTable{}, nil
	}
	return metadata.LoadSchemaTable(cfg.Bundles.ComponentsTable)
}

// ProvideDB opens the database and applies migrations. An empty driver
// runs the daemon memory only and yields a nil DB.
func ProvideDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*persist.DB, func(), error) {
	if cfg.Database.Driver == "" {
		return nil, func() {}, nil
	}
	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := persist.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return db, db.Close, nil
}

func ProvideSlotRepo(db *persist.DB) *persist.SlotRepo {
	if db == nil {
		return nil
	}
	return persist.NewSlotRepo(db)
}
