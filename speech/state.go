package speech

// Phase represents the playback controller's transport phase.
type Phase int

const (
	// PhaseIdle indicates nothing is playing and no start is in flight.
	PhaseIdle Phase = iota
	// PhaseStarting indicates an item is transitioning toward playback.
	// This phase doubles as the playback-start mutex: while it is held no
	// second start sequence may begin.
	PhaseStarting
	// PhasePlaying indicates audio is actively playing.
	PhasePlaying
	// PhasePaused indicates playback is paused with a resumable position.
	PhasePaused
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateMachine manages transport phase transitions for the controller.
type StateMachine struct {
	current     Phase
	transitions map[Phase][]Phase
	onEnter     map[Phase]func()
}

// NewStateMachine creates a state machine with the valid transport
// transitions. Starting may fall back to Idle when no pending item exists or
// synthesis fails before a player is constructed.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: PhaseIdle,
		transitions: map[Phase][]Phase{
			PhaseIdle:     {PhaseStarting},
			PhaseStarting: {PhasePlaying, PhaseIdle},
			PhasePlaying:  {PhasePaused, PhaseIdle},
			PhasePaused:   {PhasePlaying, PhaseIdle},
		},
		onEnter: make(map[Phase]func()),
	}
}

// Transition attempts to move to the given phase. It returns false and leaves
// the machine untouched when the transition is not valid.
func (sm *StateMachine) Transition(to Phase) bool {
	valid := false
	for _, phase := range sm.transitions[sm.current] {
		if phase == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	sm.current = to
	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}
	return true
}

// Current returns the current phase.
func (sm *StateMachine) Current() Phase {
	return sm.current
}

// OnEnter registers a callback invoked after entering a phase.
func (sm *StateMachine) OnEnter(phase Phase, fn func()) {
	sm.onEnter[phase] = fn
}
