package handler

import (
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandleHello processes C_HELLO: [signer key].
// The declared key becomes the signer of every request on this session.
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) {
	key := r.ReadKey()
	if r.Err() != nil || key.IsZero() {
		deps.Log.Debug("HELLO 格式錯誤", zap.Uint64("session", sess.ID))
		sendResult(sess, 0, uuid.Nil, errInvalidRequest)
		return
	}
	sess.Identify(key)
	sendResult(sess, 0, uuid.Nil, nil, deps.Config.Server.Name)
}
