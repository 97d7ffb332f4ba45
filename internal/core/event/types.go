package event

import (
	"github.com/arcworks/arc/internal/ledger"
	"github.com/google/uuid"
)

// Committed is emitted once per committed unit of work, ahead of the
// events it carried.
type Committed struct {
	Tx      uuid.UUID
	Storage map[ledger.Address]int64
	Events  int
}

// Forward returns a commit hook that queues r's events on b.
func Forward(b *Bus) ledger.CommitHook {
	return func(r ledger.Receipt) {
		batch := make([]any, 0, len(r.Events)+1)
		batch = append(batch, Committed{Tx: r.ID, Storage: r.Storage, Events: len(r.Events)})
		batch = append(batch, r.Events...)
		b.EmitAny(batch...)
	}
}
