package persist

import (
	"context"
	"fmt"
	"sort"

	"github.com/arcworks/arc/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotRepo checkpoints committed ledger slots.
type SlotRepo struct {
	db *DB
}

func NewSlotRepo(db *DB) *SlotRepo {
	return &SlotRepo{db: db}
}

func (r *SlotRepo) now() string {
	if r.db.Driver == DriverPostgres {
		return "now()"
	}
	return "unixepoch()"
}

// SaveBatch writes upserts and deletes in a single transaction and records
// the checkpoint. It returns the checkpoint id.
func (r *SlotRepo) SaveBatch(ctx context.Context, upserts []ledger.Record, deletes []ledger.Address) (uuid.UUID, error) {
	id := uuid.New()
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("checkpoint begin: %w", err)
	}
	defer tx.Rollback()

	upsert := r.db.rebind(`INSERT INTO slots (address, owner, data, version) VALUES (?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			owner = excluded.owner, data = excluded.data, version = excluded.version, updated_at = ` + r.now())
	for _, rec := range upserts {
		data := rec.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := tx.ExecContext(ctx, upsert,
			rec.Address.String(), rec.Owner.String(), data, int64(rec.Version),
		); err != nil {
			return uuid.Nil, fmt.Errorf("checkpoint upsert %s: %w", rec.Address.Short(), err)
		}
	}

	del := r.db.rebind(`DELETE FROM slots WHERE address = ?`)
	for _, addr := range deletes {
		if _, err := tx.ExecContext(ctx, del, addr.String()); err != nil {
			return uuid.Nil, fmt.Errorf("checkpoint delete %s: %w", addr.Short(), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		r.db.rebind(`INSERT INTO checkpoints (id, upserts, deletes) VALUES (?, ?, ?)`),
		id.String(), len(upserts), len(deletes),
	); err != nil {
		return uuid.Nil, fmt.Errorf("checkpoint record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("checkpoint commit: %w", err)
	}
	r.db.log.Debug("檢查點已寫入",
		zap.String("checkpoint", id.String()),
		zap.Int("upserts", len(upserts)),
		zap.Int("deletes", len(deletes)),
	)
	return id, nil
}

// LoadAll returns every checkpointed slot, ordered by address.
func (r *SlotRepo) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `SELECT address, owner, data, version FROM slots`)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var (
			addr, owner string
			data        []byte
			version     int64
		)
		if err := rows.Scan(&addr, &owner, &data, &version); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		rec := ledger.Record{Data: data, Version: uint64(version)}
		if rec.Address, err = ledger.ParseAddress(addr); err != nil {
			return nil, fmt.Errorf("slot address %q: %w", addr, err)
		}
		if rec.Owner, err = ledger.ParseAddress(owner); err != nil {
			return nil, fmt.Errorf("slot owner %q: %w", owner, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

// CheckpointCount returns how many checkpoints have been written.
func (r *SlotRepo) CheckpointCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.SQL.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}
