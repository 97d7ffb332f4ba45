package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testProgram = ProgramAddress("test")
	otherProgram = ProgramAddress("other")
	alice       = HashAddress([]byte("alice"))
	bob         = HashAddress([]byte("bob"))
)

func newTestRuntime(maxSlot int) *Runtime {
	return NewRuntime(NewStore(Config{MaxSlotSize: maxSlot, Shards: 4}), zap.NewNop())
}

func TestDeriveAddressSeparatesSeeds(t *testing.T) {
	a := DeriveAddress(testProgram, []byte("ab"), []byte("c"))
	b := DeriveAddress(testProgram, []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, DeriveAddress(testProgram, []byte("ab"), []byte("c")))
	assert.NotEqual(t, a, DeriveAddress(otherProgram, []byte("ab"), []byte("c")))
}

func TestParseAddress(t *testing.T) {
	parsed, err := ParseAddress(alice.String())
	require.NoError(t, err)
	assert.Equal(t, alice, parsed)

	_, err = ParseAddress("abcd")
	assert.Error(t, err)
}

func TestAllocateWriteCommit(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))

	rc, err := rt.Execute(context.Background(), "alloc", []Address{alice}, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			if err := c.Allocate(addr, 16); err != nil {
				return err
			}
			return c.Write(addr, []byte("hello"))
		})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(16), rc.Storage[alice])

	rec, ok := rt.Store().Get(addr)
	require.True(t, ok)
	assert.Equal(t, testProgram, rec.Owner)
	assert.Len(t, rec.Data, 16)
	assert.Equal(t, []byte("hello"), rec.Data[:5])
}

func TestAllocateTwiceFails(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))
	alloc := func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error { return c.Allocate(addr, 8) })
	}
	_, err := rt.Execute(context.Background(), "alloc", nil, alloc)
	require.NoError(t, err)
	_, err = rt.Execute(context.Background(), "alloc", nil, alloc)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSizeCeiling(t *testing.T) {
	rt := newTestRuntime(64)
	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "alloc", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error { return c.Allocate(addr, 65) })
	})
	assert.ErrorIs(t, err, ErrSizeOverflow)
	assert.Equal(t, 0, rt.Store().Len())
}

func TestWriteNeverTruncates(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "alloc", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			if err := c.Allocate(addr, 4); err != nil {
				return err
			}
			return c.Write(addr, []byte("too long"))
		})
	})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	_, ok := rt.Store().Get(addr)
	assert.False(t, ok, "failed unit of work must leave nothing behind")
}

func TestOwnerEnforcement(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "alloc", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error { return c.Allocate(addr, 8) })
	})
	require.NoError(t, err)

	_, err = rt.Execute(context.Background(), "steal", nil, func(c *Context) error {
		return c.Invoke(otherProgram, func(c *Context) error { return c.Write(addr, []byte{1}) })
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = rt.View(context.Background(), func(c *Context) error {
		_, err := c.Load(addr, otherProgram)
		return err
	})
	assert.ErrorIs(t, err, ErrWrongOwner)
}

func TestResizeZeroing(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "resize", []Address{alice}, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			require.NoError(t, c.Allocate(addr, 8))
			require.NoError(t, c.Write(addr, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
			require.NoError(t, c.Resize(addr, 4, ResizeOptions{Beneficiary: bob}))
			require.NoError(t, c.Resize(addr, 8, ResizeOptions{}))
			data, err := c.Load(addr, testProgram)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data, "shrink does not zero")

			require.NoError(t, c.Resize(addr, 4, ResizeOptions{}))
			require.NoError(t, c.Resize(addr, 8, ResizeOptions{Zero: true}))
			data, err = c.Load(addr, testProgram)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, data)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestCloseReclaims(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "alloc", []Address{alice}, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error { return c.Allocate(addr, 32) })
	})
	require.NoError(t, err)

	rc, err := rt.Execute(context.Background(), "close", []Address{alice}, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error { return c.Close(addr, bob) })
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-32), rc.Storage[bob])
	assert.Equal(t, 0, rt.Store().Len())

	_, deletes := rt.Store().TakeDirty()
	assert.Contains(t, deletes, addr)
}

func TestErrorDiscardsEverything(t *testing.T) {
	rt := newTestRuntime(0)
	a := DeriveAddress(testProgram, []byte("a"))
	boom := errors.New("boom")
	_, err := rt.Execute(context.Background(), "fail", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			if err := c.Allocate(a, 8); err != nil {
				return err
			}
			c.Emit("never delivered")
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, rt.Store().Len())
	assert.Equal(t, 0, rt.Store().DirtyCount())
}

func TestPanicIsRecovered(t *testing.T) {
	rt := newTestRuntime(0)
	_, err := rt.Execute(context.Background(), "panic", nil, func(c *Context) error {
		panic("bad request")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad request")
}

func TestConcurrentWritersConflict(t *testing.T) {
	rt := newTestRuntime(0)
	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "alloc", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error { return c.Allocate(addr, 8) })
	})
	require.NoError(t, err)

	// The outer unit of work reads the slot, then another one commits a
	// change to it before the outer one finishes.
	_, err = rt.Execute(context.Background(), "outer", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			if err := c.Write(addr, []byte{1}); err != nil {
				return err
			}
			_, innerErr := rt.Execute(context.Background(), "inner", nil, func(c *Context) error {
				return c.Invoke(testProgram, func(c *Context) error { return c.Write(addr, []byte{2}) })
			})
			require.NoError(t, innerErr)
			return nil
		})
	})
	assert.ErrorIs(t, err, ErrConflict)

	rec, ok := rt.Store().Get(addr)
	require.True(t, ok)
	assert.Equal(t, byte(2), rec.Data[0], "first committed writer wins")
}

func TestTakeDirtyNeverSplitsACommit(t *testing.T) {
	rt := newTestRuntime(0)
	a := DeriveAddress(testProgram, []byte("a"))
	b := DeriveAddress(testProgram, []byte("b"))
	write := func(v uint64, addrs ...Address) {
		_, err := rt.Execute(context.Background(), "write", nil, func(c *Context) error {
			return c.Invoke(testProgram, func(c *Context) error {
				for _, addr := range addrs {
					if !c.Exists(addr) {
						if err := c.Allocate(addr, 8); err != nil {
							return err
						}
					}
					if err := c.Write(addr, binary.LittleEndian.AppendUint64(nil, v)); err != nil {
						return err
					}
				}
				return nil
			})
		})
		assert.NoError(t, err)
	}
	write(0, a, b)

	// Every committed state has a == b or a == b+1; a checkpoint that holds
	// half of a two-slot commit would show a == b+2.
	persisted := map[Address]uint64{}
	checkpoint := func() {
		upserts, _ := rt.Store().TakeDirty()
		for _, rec := range upserts {
			persisted[rec.Address] = binary.LittleEndian.Uint64(rec.Data)
		}
		if d := persisted[a] - persisted[b]; d > 1 {
			t.Errorf("checkpoint split a commit: a=%d b=%d", persisted[a], persisted[b])
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint64(0); i < 500; i++ {
			write(2*i+1, a)
			write(2*i+2, a, b)
		}
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		checkpoint()
	}
	checkpoint()
	assert.Equal(t, uint64(1000), persisted[a])
	assert.Equal(t, uint64(1000), persisted[b])
	assert.Zero(t, rt.Store().DirtyCount())
}

func TestAuthority(t *testing.T) {
	rt := newTestRuntime(0)
	var leaked Authority
	_, err := rt.Execute(context.Background(), "auth", []Address{alice}, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			assert.Equal(t, testProgram, c.Program())
			pda := c.Sign([]byte("signer"))
			assert.True(t, pda.Valid())
			assert.False(t, Authority{}.Valid())
			assert.NoError(t, c.Verify(pda, DeriveAddress(testProgram, []byte("signer"))))
			assert.Equal(t, testProgram, pda.Issuer())

			signer, err := c.Signer(alice)
			require.NoError(t, err)
			assert.NoError(t, c.Verify(signer, alice))

			_, err = c.Signer(bob)
			assert.ErrorIs(t, err, ErrUnauthorized)

			assert.ErrorIs(t, c.Verify(Authority{}, alice), ErrUnauthorized)
			assert.ErrorIs(t, c.Verify(signer, bob), ErrUnauthorized)
			leaked = pda
			return nil
		})
	})
	require.NoError(t, err)

	_, err = rt.Execute(context.Background(), "replay", nil, func(c *Context) error {
		return c.Verify(leaked, leaked.Key())
	})
	assert.ErrorIs(t, err, ErrUnauthorized, "tokens do not outlive their unit of work")
}

func TestInvokeDepth(t *testing.T) {
	rt := newTestRuntime(0)
	var recurse func(c *Context) error
	recurse = func(c *Context) error { return c.Invoke(testProgram, recurse) }
	_, err := rt.Execute(context.Background(), "deep", nil, recurse)
	assert.ErrorIs(t, err, ErrInvokeDepth)
}

func TestCommitHooksAndRestore(t *testing.T) {
	rt := newTestRuntime(0)
	var seen []any
	rt.OnCommit(func(rc Receipt) { seen = append(seen, rc.Events...) })

	addr := DeriveAddress(testProgram, []byte("slot"))
	_, err := rt.Execute(context.Background(), "alloc", nil, func(c *Context) error {
		return c.Invoke(testProgram, func(c *Context) error {
			c.Emit("allocated")
			return c.Allocate(addr, 8)
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"allocated"}, seen)

	snapshot := rt.Store().Records()
	restored := NewStore(Config{Shards: 8})
	restored.Restore(snapshot)
	rec, ok := restored.Get(addr)
	require.True(t, ok)
	assert.Equal(t, snapshot[0].Version, rec.Version)
	assert.Equal(t, 0, restored.DirtyCount())
}
