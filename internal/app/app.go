// Package app assembles the ledger, the programs and persistence into one
// daemon and brings a fresh or restored store to its configured state.
package app

import (
	"github.com/arcworks/arc/internal/bundle/metadata"
	"github.com/arcworks/arc/internal/bundle/script"
	"github.com/arcworks/arc/internal/config"
	"github.com/arcworks/arc/internal/core/ecs"
	"github.com/arcworks/arc/internal/core/event"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/persist"
	"github.com/arcworks/arc/internal/registry"
	"go.uber.org/zap"
)

// App holds every long-lived component of the daemon.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    *ledger.Store
	Runtime  *ledger.Runtime
	Bus      *event.Bus
	Index    *ecs.World
	Core     *coreds.Service
	Registry *registry.Service
	Metadata *metadata.Service
	Scripts  *script.Engine
	Table    *metadata.SchemaTable
	DB       *persist.DB       // nil when running memory only
	Slots    *persist.SlotRepo // nil when running memory only
}

func New(
	cfg *config.Config,
	log *zap.Logger,
	store *ledger.Store,
	rt *ledger.Runtime,
	bus *event.Bus,
	index *ecs.World,
	core *coreds.Service,
	reg *registry.Service,
	md *metadata.Service,
	scripts *script.Engine,
	table *metadata.SchemaTable,
	db *persist.DB,
	slots *persist.SlotRepo,
) *App {
	a := &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Runtime:  rt,
		Bus:      bus,
		Index:    index,
		Core:     core,
		Registry: reg,
		Metadata: md,
		Scripts:  scripts,
		Table:    table,
		DB:       db,
		Slots:    slots,
	}
	a.subscribe()
	return a
}

// subscribe logs the committed events worth an operator's attention.
func (a *App) subscribe() {
	event.Subscribe(a.Bus, func(e registry.InstanceRegistered) {
		a.Log.Info("事件: 實例建立", zap.Uint64("instance", e.Instance), zap.String("authority", e.Authority.Short()))
	})
	event.Subscribe(a.Bus, func(e metadata.Minted) {
		a.Log.Info("事件: 實體鑄造",
			zap.String("entity", e.Entity.Short()),
			zap.String("mint", e.Mint.Short()),
			zap.String("name", e.Name),
		)
	})
	event.Subscribe(a.Bus, func(e coreds.EntityDestroyed) {
		a.Log.Info("事件: 實體移除", zap.String("entity", e.Entity.Short()))
	})
	event.Subscribe(a.Bus, func(e event.Committed) {
		a.Log.Debug("事件: 交易提交", zap.String("tx", e.Tx.String()), zap.Int("events", e.Events))
	})
}
