package system

import (
	"time"

	coresys "github.com/arcworks/arc/internal/core/system"
	"github.com/arcworks/arc/internal/net"
	"go.uber.org/zap"
)

// CleanupSystem drops sessions that closed during the tick. Phase 4
// (Cleanup).
type CleanupSystem struct {
	netServer *net.Server
	store     *net.SessionStore
	log       *zap.Logger
}

func NewCleanupSystem(netServer *net.Server, store *net.SessionStore, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{netServer: netServer, store: store, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	var closed []uint64
	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			closed = append(closed, sess.ID)
		}
	})
	for _, id := range closed {
		s.store.Remove(id)
		s.netServer.NotifyDead(id)
		s.log.Debug("連線已清除", zap.Uint64("session", id))
	}
}
