package packet

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the protocol phase a session is in.
type SessionState int

const (
	StateHandshake  SessionState = iota // connected, awaiting HELLO
	StateIdentified                     // signer key known, requests accepted
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateIdentified:
		return "Identified"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

var (
	ErrEmptyPacket     = errors.New("empty packet")
	ErrStateNotAllowed = errors.New("opcode not allowed in session state")
	ErrHandlerPanic    = errors.New("handler panic")
)

// HandlerFunc handles one decoded request. The session is passed as an
// opaque value so this package does not import net.
type HandlerFunc func(sess any, r *Reader)

type route struct {
	fn     HandlerFunc
	states map[SessionState]struct{}
}

// Registry routes opcodes to handlers, gated on session state.
type Registry struct {
	routes map[byte]route
	log    *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{routes: make(map[byte]route), log: log}
}

// Register routes opcode to fn for sessions in one of states. A second
// call for the same opcode replaces the first.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	rt := route{fn: fn, states: make(map[SessionState]struct{}, len(states))}
	for _, s := range states {
		rt.states[s] = struct{}{}
	}
	reg.routes[opcode] = rt
}

// Len returns the number of routed opcodes.
func (reg *Registry) Len() int { return len(reg.routes) }

// Dispatch runs the handler for data[0]. Unknown opcodes are dropped
// without error.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPacket
	}
	opcode := data[0]
	rt, ok := reg.routes[opcode]
	if !ok {
		reg.log.Debug("未知操作碼", zap.Uint8("opcode", opcode), zap.Stringer("state", state))
		return nil
	}
	if _, ok := rt.states[state]; !ok {
		reg.log.Warn("操作碼在此狀態下不允許", zap.Uint8("opcode", opcode), zap.Stringer("state", state))
		return fmt.Errorf("%w: opcode 0x%02X in %s", ErrStateNotAllowed, opcode, state)
	}
	reg.log.Debug("收到請求", zap.Uint8("opcode", opcode), zap.Int("size", len(data)))
	return reg.call(rt.fn, sess, NewReader(data), opcode)
}

func (reg *Registry) call(fn HandlerFunc, sess any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復", zap.Uint8("opcode", opcode), zap.Any("panic", rec))
			err = fmt.Errorf("%w: opcode 0x%02X: %v", ErrHandlerPanic, opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}
