package system

import (
	"time"

	coresys "github.com/arcworks/arc/internal/core/system"
	"github.com/arcworks/arc/internal/net"
)

// OutputSystem flushes replies produced after the input phase. Phase 2
// (Output).
type OutputSystem struct {
	store *net.SessionStore
}

func NewOutputSystem(store *net.SessionStore) *OutputSystem {
	return &OutputSystem{store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
