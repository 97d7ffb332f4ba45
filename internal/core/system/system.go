package system

import "time"

// Phase orders systems within one tick of the daemon loop.
type Phase int

const (
	PhaseInput    Phase = iota // 0: accept sessions, dispatch requests
	PhaseEvents                // 1: deliver last tick's committed events
	PhaseOutput                // 2: flush replies
	PhasePersist               // 3: checkpoint dirty slots
	PhaseCleanup               // 4: drop closed sessions
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseEvents:
		return "events"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is one step of the daemon loop.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
