package backtest

import "fmt"

// State is the lifecycle phase of a run.
type State string

// Run lifecycle states. A run moves strictly forward; Failed is reachable
// from every non-terminal state.
const (
	StateInitialized State = "initialized"
	StateValidating  State = "validating"
	StateReplaying   State = "replaying"
	StateReducing    State = "reducing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

var validTransitions = map[State][]State{
	StateInitialized: {StateValidating, StateFailed},
	StateValidating:  {StateReplaying, StateFailed},
	StateReplaying:   {StateReducing, StateFailed},
	StateReducing:    {StateCompleted, StateFailed},
}

// CanTransition reports whether moving to next is a legal step.
func (s State) CanTransition(next State) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// lifecycle tracks one run's forward-only state machine. Not safe for
// concurrent use; each run owns its own.
type lifecycle struct {
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateInitialized}
}

func (l *lifecycle) transition(next State) error {
	if !l.state.CanTransition(next) {
		return fmt.Errorf("illegal state transition %s -> %s", l.state, next)
	}
	l.state = next
	return nil
}

// fail moves to Failed from any non-terminal state.
func (l *lifecycle) fail() {
	if !l.state.Terminal() {
		l.state = StateFailed
	}
}
