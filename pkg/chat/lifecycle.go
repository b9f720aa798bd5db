package chat

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when a lifecycle transition is not allowed
// from the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State is the listening status of the server
type State int

const (
	// StateStopped means constructed or stopped: not accepting connections, not closed
	StateStopped State = iota
	// StateListening means the endpoint accepts new connections
	StateListening
	// StateClosed is terminal: listeners and sessions are gone for this process
	StateClosed
)

// States lists every state in declaration order
var States = []State{StateStopped, StateListening, StateClosed}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// allowedTransitions maps each state to the states reachable from it.
// Closed has no outgoing edge.
var allowedTransitions = map[State][]State{
	StateStopped:   {StateListening, StateClosed},
	StateListening: {StateStopped, StateClosed},
	StateClosed:    {},
}

// Lifecycle is the server's listening state machine
type Lifecycle struct {
	mu       sync.RWMutex
	state    State
	onChange func(from, to State)
}

// NewLifecycle returns a lifecycle in StateStopped. onChange, if not nil, is
// called after every successful transition.
func NewLifecycle(onChange func(from, to State)) *Lifecycle {
	return &Lifecycle{
		state:    StateStopped,
		onChange: onChange,
	}
}

// State returns the current state
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CanTransition reports whether to is reachable from the current state
func (l *Lifecycle) CanTransition(to State) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return canTransition(l.state, to)
}

func canTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves to the given state. Moving to the current state is a
// no-op so repeated notifications are harmless.
func (l *Lifecycle) Transition(to State) error {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return nil
	}
	if !canTransition(from, to) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	l.state = to
	l.mu.Unlock()

	if l.onChange != nil {
		l.onChange(from, to)
	}
	return nil
}
