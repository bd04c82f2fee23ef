package inbox

// Phase is the lifecycle state of a run
type Phase int

const (
	// PhaseIdle has no run loaded
	PhaseIdle Phase = iota
	// PhaseLoading is fetching the initial batch
	PhaseLoading
	// PhaseActive accepts selections, interactions and decisions
	PhaseActive
	// PhaseWavePending waits for an in-flight wave before continuing
	PhaseWavePending
	// PhaseComplete has scored every message
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	case PhaseWavePending:
		return "wave-pending"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// transitions lists the legal next phases for each phase.
// Loading can be re-entered from anywhere and exit always returns to idle.
var transitions = map[Phase][]Phase{
	PhaseIdle:        {PhaseLoading, PhaseIdle},
	PhaseLoading:     {PhaseActive, PhaseLoading, PhaseIdle},
	PhaseActive:      {PhaseWavePending, PhaseComplete, PhaseLoading, PhaseIdle},
	PhaseWavePending: {PhaseActive, PhaseLoading, PhaseIdle},
	PhaseComplete:    {PhaseLoading, PhaseIdle},
}

// CanTransition reports whether moving from p to next is legal
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// acceptsActions reports whether messages can be selected or opened
func (p Phase) acceptsActions() bool {
	return p == PhaseActive || p == PhaseWavePending
}
