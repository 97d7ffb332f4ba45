package event

import (
	"context"
	"fmt"
	"testing"

	"github.com/arcworks/arc/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ping struct{ N int }

func TestDoubleBuffer(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(p ping) { got = append(got, p.N) })

	Emit(b, ping{1})
	b.EmitAny(ping{2})
	b.EmitAny(nil)
	b.DispatchAll()
	assert.Empty(t, got, "events are not readable in the tick they were emitted")

	assert.Equal(t, 2, b.SwapBuffers())
	b.DispatchAll()
	assert.Equal(t, []int{1, 2}, got)

	assert.Equal(t, 0, b.SwapBuffers())
	b.DispatchAll()
	assert.Equal(t, []int{1, 2}, got)
}

type pong struct{ N int }

func TestDispatchKeepsEmitOrderAcrossTypes(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(p ping) { got = append(got, fmt.Sprintf("ping%d", p.N)) })
	Subscribe(b, func(p pong) { got = append(got, fmt.Sprintf("pong%d", p.N)) })

	var want []string
	for i := 0; i < 50; i++ {
		if i%3 == 0 {
			Emit(b, pong{i})
			want = append(want, fmt.Sprintf("pong%d", i))
		} else {
			b.EmitAny(ping{i})
			want = append(want, fmt.Sprintf("ping%d", i))
		}
	}
	require.Equal(t, 50, b.SwapBuffers())
	b.DispatchAll()
	assert.Equal(t, want, got)
}

type marker struct{ Tag string }

func TestForwardReceipt(t *testing.T) {
	b := NewBus()
	rt := ledger.NewRuntime(ledger.NewStore(ledger.Config{}), zap.NewNop())
	rt.OnCommit(Forward(b))

	var commits []Committed
	var markers []string
	Subscribe(b, func(c Committed) { commits = append(commits, c) })
	Subscribe(b, func(m marker) { markers = append(markers, m.Tag) })

	payer := ledger.HashAddress([]byte("payer"))
	rc, err := rt.Execute(context.Background(), "emit", []ledger.Address{payer}, func(c *ledger.Context) error {
		c.Emit(marker{"a"})
		c.Emit(marker{"b"})
		return nil
	})
	require.NoError(t, err)

	b.SwapBuffers()
	b.DispatchAll()
	require.Len(t, commits, 1)
	assert.Equal(t, rc.ID, commits[0].Tx)
	assert.Equal(t, 2, commits[0].Events)
	assert.Equal(t, []string{"a", "b"}, markers)
}
