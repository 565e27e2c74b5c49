package lifecycle

import (
	"fmt"
	"time"
)

// State is a resource lifecycle state.
type State string

const (
	// StateNotStarted indicates the resource has not been started yet.
	StateNotStarted State = "not_started"

	// StateStarting indicates the driver is starting the resource.
	StateStarting State = "starting"

	// StateRunning indicates the resource is running.
	StateRunning State = "running"

	// StateExited indicates the resource process exited.
	StateExited State = "exited"

	// StateFailedToStart indicates the resource never reached Running.
	StateFailedToStart State = "failed_to_start"

	// StateUnhealthy indicates the resource is running but failing health checks.
	StateUnhealthy State = "unhealthy"

	// StateStopping indicates the driver is stopping the resource.
	StateStopping State = "stopping"

	// StateStopped indicates the resource was stopped.
	StateStopped State = "stopped"
)

// IsTerminal returns true if no further transition occurs from this state
// without an explicit restart.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateFailedToStart || s == StateStopped
}

// Validate checks if the state is a member of the closed state set.
func (s State) Validate() error {
	switch s {
	case StateNotStarted, StateStarting, StateRunning, StateExited,
		StateFailedToStart, StateUnhealthy, StateStopping, StateStopped:
		return nil
	default:
		return fmt.Errorf("invalid lifecycle state: %s", s)
	}
}

// Snapshot is one timestamped entry in a resource's state history. Only the
// latest snapshot is authoritative for readiness decisions; watchers receive
// every accepted transition.
type Snapshot struct {
	// State is the lifecycle state.
	State State `json:"state"`

	// Label is a free-form human-readable state label.
	Label string `json:"label,omitempty"`

	// Timestamp is when the driver observed the transition. Reports with a
	// timestamp older than the last accepted one are dropped.
	Timestamp time.Time `json:"timestamp"`
}

// anyTerminal reports whether the target set contains a terminal state.
// A wait whose target set includes any terminal state is satisfied by every
// terminal state, so a resource failing fast cannot deadlock its waiters.
func anyTerminal(targets []State) bool {
	for _, t := range targets {
		if t.IsTerminal() {
			return true
		}
	}
	return false
}

// matches reports whether s satisfies the target set.
func matches(s State, targets []State) bool {
	for _, t := range targets {
		if s == t {
			return true
		}
	}
	return s.IsTerminal() && anyTerminal(targets)
}

// TerminalStates returns the terminal state set, the common target of waits.
func TerminalStates() []State {
	return []State{StateExited, StateFailedToStart, StateStopped}
}
