// Package link tracks whether the charge controller is reachable.
//
// A run of read failures only counts as a lost device once it exceeds the
// retry threshold; shorter runs are absorbed so that serial noise does not
// blank published telemetry.
package link

import (
	"errors"
	"fmt"
)

// DefaultRetries is the number of consecutive failures tolerated while connected.
const DefaultRetries = 5

var ErrDeviceLost = errors.New("device lost")

type Kind int

const (
	// OK: the read succeeded.
	OK Kind = iota
	// Retryable: the read failed and the failure was absorbed.
	Retryable
	// Fatal: the failure run exceeded the threshold; the caller must stop.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of feeding one poll result into a State.
type Outcome struct {
	Kind Kind
	Err  error

	// Restored is set when the device came back after being declared lost.
	Restored bool
	// Lost is set on the transition to disconnected.
	Lost bool
}

// State is the connection lifecycle of one device.
type State struct {
	Connected  bool
	ErrorCount int
}

// Connected returns the state right after a successful discovery read.
func Connected() State {
	return State{Connected: true}
}

// Observe applies one poll result and returns the next state.
// readErr == nil means the read succeeded.
func (s State) Observe(readErr error, retries int) (State, Outcome) {
	if readErr == nil {
		out := Outcome{Kind: OK, Restored: !s.Connected}
		return State{Connected: true, ErrorCount: 0}, out
	}

	next := State{Connected: s.Connected, ErrorCount: s.ErrorCount + 1}

	if next.Connected && next.ErrorCount > retries {
		next.Connected = false
		return next, Outcome{
			Kind: Fatal,
			Err:  fmt.Errorf("%w after %d consecutive errors: %w", ErrDeviceLost, next.ErrorCount, readErr),
			Lost: true,
		}
	}

	return next, Outcome{Kind: Retryable, Err: readErr}
}
