package controller

// Phase is the controller's coarse-grained mode.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting"
	PhaseCountdown Phase = "countdown"
	PhaseFlashing  Phase = "flashing"
	PhaseComplete  Phase = "complete"
)

var validTransitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseStarting},
	PhaseStarting:  {PhaseCountdown, PhaseIdle},
	PhaseCountdown: {PhaseCountdown, PhaseFlashing, PhaseIdle},
	PhaseFlashing:  {PhaseFlashing, PhaseComplete, PhaseIdle},
	PhaseComplete:  {PhaseIdle},
}

// Rollover edges are only taken after the reset for an incoming session: the
// backend began the next auto-repeat session while the previous one was still
// shown as complete.
var rolloverTransitions = map[Phase][]Phase{
	PhaseComplete: {PhaseCountdown, PhaseFlashing},
}

// CanTransition reports whether from→to is a regular edge.
func CanTransition(from, to Phase) bool {
	return contains(validTransitions[from], to)
}

// CanRollover reports whether from→to is a rollover edge.
func CanRollover(from, to Phase) bool {
	return contains(rolloverTransitions[from], to)
}

// Cancellable reports whether stop applies in p.
func (p Phase) Cancellable() bool {
	return p == PhaseStarting || p == PhaseCountdown || p == PhaseFlashing
}

func contains(phases []Phase, p Phase) bool {
	for _, candidate := range phases {
		if candidate == p {
			return true
		}
	}
	return false
}
