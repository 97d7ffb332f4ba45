package event

import (
	"reflect"
	"sync"
)

// queued is one emitted event and the type its handlers are keyed by.
type queued struct {
	t  reflect.Type
	ev any
}

// Bus is a double-buffered event bus. Events emitted during tick N are
// delivered during tick N+1, when EventDispatchSystem swaps the buffers,
// in the order they were emitted regardless of type.
// Emitting is safe from any goroutine; swapping and dispatching happen on
// the loop goroutine.
type Bus struct {
	mu       sync.Mutex // guards back and handlers
	front    []queued
	back     []queued
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

// Emit queues an event into the back buffer (readable next tick).
func Emit[T any](b *Bus, event T) {
	b.mu.Lock()
	b.back = append(b.back, queued{reflect.TypeOf((*T)(nil)).Elem(), event})
	b.mu.Unlock()
}

// EmitAny queues events keyed by their dynamic types. Used for events that
// arrive untyped, such as those in a ledger receipt. The events stay
// adjacent in the queue; nil entries are skipped.
func (b *Bus) EmitAny(events ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range events {
		if ev == nil {
			continue
		}
		b.back = append(b.back, queued{reflect.TypeOf(ev), ev})
	}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers rotates back→front and clears the new back buffer. It returns
// the number of events now readable.
func (b *Bus) SwapBuffers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.front)
	b.front, b.back = b.back, b.front[:0]
	return len(b.front)
}

// DispatchAll delivers the front buffer in emit order.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	snapshot := make(map[reflect.Type][]any, len(b.handlers))
	for t, hs := range b.handlers {
		snapshot[t] = hs
	}
	b.mu.Unlock()

	for _, q := range b.front {
		for _, h := range snapshot[q.t] {
			callHandler(h, q.ev)
		}
	}
}

func callHandler(handler any, event any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(event)})
}
