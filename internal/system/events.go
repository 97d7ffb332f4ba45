package system

import (
	"time"

	"github.com/arcworks/arc/internal/core/event"
	coresys "github.com/arcworks/arc/internal/core/system"
)

// EventDispatchSystem delivers the events committed during the previous
// tick to their subscribers. Phase 1 (Events).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	if s.bus.SwapBuffers() > 0 {
		s.bus.DispatchAll()
	}
}
