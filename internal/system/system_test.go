package system

import (
	"context"
	"errors"
	stdnet "net"
	"testing"
	"time"

	"github.com/arcworks/arc/internal/core/event"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSaver struct {
	fail    bool
	batches int
	upserts []ledger.Record
	deletes []ledger.Address
}

func (f *fakeSaver) SaveBatch(_ context.Context, upserts []ledger.Record, deletes []ledger.Address) (uuid.UUID, error) {
	if f.fail {
		return uuid.Nil, errors.New("disk full")
	}
	f.batches++
	f.upserts = append(f.upserts, upserts...)
	f.deletes = append(f.deletes, deletes...)
	return uuid.New(), nil
}

func write(t *testing.T, rt *ledger.Runtime, addr ledger.Address, data []byte) {
	_, err := rt.Execute(context.Background(), "write", nil, func(c *ledger.Context) error {
		return c.Invoke(ledger.ProgramAddress("owner"), func(c *ledger.Context) error {
			if err := c.Allocate(addr, len(data)); err != nil {
				return err
			}
			return c.Write(addr, data)
		})
	})
	require.NoError(t, err)
}

func TestCheckpointInterval(t *testing.T) {
	store := ledger.NewStore(ledger.Config{})
	rt := ledger.NewRuntime(store, zap.NewNop())
	saver := &fakeSaver{}
	sys := NewCheckpointSystem(store, saver, 2, time.Second, zap.NewNop())

	addr := ledger.HashAddress([]byte("slot"))
	write(t, rt, addr, []byte{1, 2, 3})

	sys.Update(0)
	assert.Equal(t, 0, saver.batches)
	sys.Update(0)
	require.Equal(t, 1, saver.batches)
	require.Len(t, saver.upserts, 1)
	assert.Equal(t, addr, saver.upserts[0].Address)
	assert.Equal(t, 0, store.DirtyCount())

	// Nothing dirty, nothing written.
	sys.Update(0)
	sys.Update(0)
	assert.Equal(t, 1, saver.batches)
}

func TestCheckpointFailureKeepsDirty(t *testing.T) {
	store := ledger.NewStore(ledger.Config{})
	rt := ledger.NewRuntime(store, zap.NewNop())
	saver := &fakeSaver{fail: true}
	sys := NewCheckpointSystem(store, saver, 1, 0, zap.NewNop())

	write(t, rt, ledger.HashAddress([]byte("a")), []byte{1})
	write(t, rt, ledger.HashAddress([]byte("b")), []byte{2})

	assert.Error(t, sys.Flush(context.Background()))
	assert.Equal(t, 2, store.DirtyCount())

	saver.fail = false
	require.NoError(t, sys.Flush(context.Background()))
	assert.Len(t, saver.upserts, 2)
	assert.Equal(t, 0, store.DirtyCount())
}

type pinged struct{ n int }

func TestEventDispatch(t *testing.T) {
	bus := event.NewBus()
	sys := NewEventDispatchSystem(bus)
	var got []int
	event.Subscribe(bus, func(e pinged) { got = append(got, e.n) })

	event.Emit(bus, pinged{n: 1})
	assert.Empty(t, got)
	sys.Update(0)
	assert.Equal(t, []int{1}, got)
	sys.Update(0)
	assert.Equal(t, []int{1}, got)
}

func TestSessionLifecycle(t *testing.T) {
	log := zap.NewNop()
	srv, err := net.NewServer("127.0.0.1:0", net.SessionOptions{
		InQueueSize:  8,
		OutQueueSize: 8,
		MaxFrameSize: 1 << 10,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, log)
	require.NoError(t, err)
	go srv.AcceptLoop()
	t.Cleanup(srv.Shutdown)

	reg := packet.NewRegistry(log)
	reg.Register(packet.C_OPCODE_HELLO, []packet.SessionState{packet.StateHandshake}, func(s any, r *packet.Reader) {
		sess := s.(*net.Session)
		sess.Identify(r.ReadKey())
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_RESULT)
		w.WriteD(0)
		sess.Send(w.Bytes())
	})

	store := net.NewSessionStore()
	input := NewInputSystem(srv, reg, store, 4, log)
	output := NewOutputSystem(store)
	cleanup := NewCleanupSystem(srv, store, log)
	tick := func() {
		input.Update(0)
		output.Update(0)
		cleanup.Update(0)
	}

	conn, err := stdnet.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { tick(); return store.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	w := packet.NewWriterWithOpcode(packet.C_OPCODE_HELLO)
	key := ledger.HashAddress([]byte("client"))
	w.WriteKey(key)
	require.NoError(t, net.WriteFrame(conn, w.Bytes()))

	var sess *net.Session
	store.ForEach(func(s *net.Session) { sess = s })
	require.Eventually(t, func() bool { tick(); return sess.State() == packet.StateIdentified }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, key, sess.Signer)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply, err := net.ReadFrame(conn, 1<<10)
	require.NoError(t, err)
	assert.Equal(t, packet.S_OPCODE_RESULT, reply[0])

	conn.Close()
	require.Eventually(t, func() bool { tick(); return store.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}
