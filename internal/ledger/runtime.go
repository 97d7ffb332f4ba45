package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CommitHook observes committed transactions.
type CommitHook func(Receipt)

// Runtime executes units of work against a Store.
type Runtime struct {
	store  *Store
	log    *zap.Logger
	tracer trace.Tracer

	mu    sync.RWMutex
	hooks []CommitHook
}

func NewRuntime(store *Store, log *zap.Logger) *Runtime {
	return &Runtime{
		store:  store,
		log:    log,
		tracer: otel.Tracer("github.com/arcworks/arc/internal/ledger"),
	}
}

func (r *Runtime) Store() *Store { return r.store }

// OnCommit registers a hook called after every successful commit, in
// registration order.
func (r *Runtime) OnCommit(h CommitHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Execute runs fn as one atomic unit of work. Signers are the external keys
// that approved it; the first one pays for storage. Any error or panic from
// fn discards every effect. Commit fails with ErrConflict if another unit of
// work changed a slot this one touched.
func (r *Runtime) Execute(ctx context.Context, name string, signers []Address, fn func(*Context) error) (Receipt, error) {
	tx := newTx(r.store, signers)
	ctx, span := r.tracer.Start(ctx, "ledger.execute", trace.WithAttributes(
		attribute.String("ledger.op", name),
		attribute.String("ledger.tx", tx.id.String()),
	))
	defer span.End()

	err := r.run(tx, name, fn)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = r.store.commit(tx)
	}
	tx.done = true
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Debug("交易中止",
			zap.String("op", name),
			zap.String("tx", tx.id.String()),
			zap.Error(err),
		)
		return Receipt{ID: tx.id}, err
	}

	span.SetAttributes(attribute.Int("ledger.slots", len(tx.entries)))
	rc := tx.receipt()
	r.mu.RLock()
	hooks := r.hooks
	r.mu.RUnlock()
	for _, h := range hooks {
		h(rc)
	}
	return rc, nil
}

// View runs fn against a private snapshot and discards every effect.
func (r *Runtime) View(ctx context.Context, fn func(*Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newTx(r.store, nil)
	defer func() { tx.done = true }()
	return r.run(tx, "view", fn)
}

// run executes fn with panic recovery so one bad request cannot take the
// process down.
func (r *Runtime) run(tx *Tx, name string, fn func(*Context) error) (err error) {
	if tx.done {
		return ErrTxDone
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("交易 panic 已恢復",
				zap.String("op", name),
				zap.String("tx", tx.id.String()),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("ledger: %s panicked: %v", name, rec)
		}
	}()
	return fn(&Context{tx: tx, program: SystemProgram})
}
