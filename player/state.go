package player

// State is the state of a playback session
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateBuffering
	StateStalled
	StateCompleted
	StateFailed
)

// String returns string representation of the state
func (state State) String() string {
	switch state {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateBuffering:
		return "Buffering"
	case StateStalled:
		return "Stalled"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal checks if the state ends the current asset
func (state State) IsTerminal() bool {
	return state == StateCompleted || state == StateFailed
}

var stateEdges = map[State][]State{
	StateIdle:      {StateLoading},
	StateLoading:   {StateReady},
	StateReady:     {StatePlaying},
	StatePlaying:   {StatePaused, StateBuffering, StateStalled, StateCompleted},
	StatePaused:    {StatePlaying},
	StateBuffering: {StatePlaying, StatePaused, StateStalled},
	StateStalled:   {StatePlaying, StatePaused, StateFailed},
}

// CanTransition checks if the session may move from one state to another.
// Any state may fail or be reset to Idle by a new source.
func CanTransition(from State, to State) bool {
	if to == StateFailed || to == StateIdle {
		return true
	}

	for _, edge := range stateEdges[from] {
		if edge == to {
			return true
		}
	}
	return false
}
