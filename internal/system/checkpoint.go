package system

import (
	"context"
	"time"

	coresys "github.com/arcworks/arc/internal/core/system"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotSaver persists a batch of slot changes.
type SlotSaver interface {
	SaveBatch(ctx context.Context, upserts []ledger.Record, deletes []ledger.Address) (uuid.UUID, error)
}

// CheckpointSystem periodically writes dirty slots to the database.
// Phase 3 (Persist).
type CheckpointSystem struct {
	store     *ledger.Store
	repo      SlotSaver
	log       *zap.Logger
	tickCount int
	interval  int // checkpoint every N ticks
	timeout   time.Duration
}

func NewCheckpointSystem(store *ledger.Store, repo SlotSaver, intervalTicks int, timeout time.Duration, log *zap.Logger) *CheckpointSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &CheckpointSystem{
		store:    store,
		repo:     repo,
		log:      log,
		interval: intervalTicks,
		timeout:  timeout,
	}
}

func (s *CheckpointSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *CheckpointSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	if err := s.Flush(context.Background()); err != nil {
		s.log.Error("檢查點寫入失敗", zap.Error(err))
	}
}

// Flush writes every dirty slot now. On failure the slots stay dirty and
// are retried by the next checkpoint. Called for graceful shutdown.
func (s *CheckpointSystem) Flush(ctx context.Context) error {
	upserts, deletes := s.store.TakeDirty()
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	id, err := s.repo.SaveBatch(ctx, upserts, deletes)
	if err != nil {
		addrs := make([]ledger.Address, 0, len(upserts)+len(deletes))
		for _, rec := range upserts {
			addrs = append(addrs, rec.Address)
		}
		s.store.MarkDirty(append(addrs, deletes...))
		return err
	}
	s.log.Debug("檢查點已寫入",
		zap.String("checkpoint", id.String()),
		zap.Int("upserts", len(upserts)),
		zap.Int("deletes", len(deletes)),
	)
	return nil
}
