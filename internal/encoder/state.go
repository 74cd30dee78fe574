package encoder

import (
	"errors"
	"fmt"
)

// ErrSessionState is returned when an operation is not valid in the
// session's current state.
var ErrSessionState = errors.New("invalid encoder session state")

type state int

const (
	stateUninitialized state = iota
	stateOpen
	stateDraining
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateOpen:
		return "open"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal moves. Open may close directly when a run is
// abandoned before the drain.
var transitions = map[state][]state{
	stateUninitialized: {stateOpen, stateClosed},
	stateOpen:          {stateDraining, stateClosed},
	stateDraining:      {stateClosed},
}

func (s *state) to(next state) error {
	for _, allowed := range transitions[*s] {
		if allowed == next {
			*s = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrSessionState, *s, next)
}

// require fails unless the session is in want.
func (s state) require(want state, op string) error {
	if s != want {
		return fmt.Errorf("%w: %s requires %s session, have %s", ErrSessionState, op, want, s)
	}
	return nil
}
