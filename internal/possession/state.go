package possession

import (
	"errors"
	"fmt"
	"time"

	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// State of the possession lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateActive
	// StateForcedRelease is held only while a forced teardown runs.
	StateForcedRelease
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateForcedRelease:
		return "forced_release"
	default:
		return "idle"
	}
}

var (
	ErrSessionActive     = errors.New("a possession session is already active")
	ErrNoSession         = errors.New("no active possession session")
	ErrEntityInvalidated = errors.New("possessed entity invalidated")
	ErrSessionClosed     = errors.New("possession session closed")
	ErrUnsupportedEntity = errors.New("entity cannot be possessed")
)

// RestoreError is one restoration step that failed during teardown.
// The remaining steps still run.
type RestoreError struct {
	Step  string
	Cause error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore %s: %v", e.Step, e.Cause)
}

func (e *RestoreError) Unwrap() error {
	return e.Cause
}

// Saved is the original state captured at acquisition.
type Saved struct {
	HoldPosition bool `json:"holdPosition"`
	Mobile       bool `json:"mobile"`
}

// Info is a copy of a session's identity for observers.
type Info struct {
	ID         string
	EntityID   string
	EntityName string
	Kind       foreign.Kind
	Saved      Saved
	Started    time.Time
	Ended      time.Time
	Forced     bool
	Reason     string
}

// Duration is zero while the session is running.
func (i Info) Duration() time.Duration {
	if i.Ended.IsZero() {
		return 0
	}
	return i.Ended.Sub(i.Started)
}

// EventType tells observers what happened.
type EventType uint8

const (
	EventStarted EventType = iota + 1
	EventEnded
)

// Event is delivered to observers after the manager lock is released.
type Event struct {
	Type    EventType
	Session Info
	// Err is the joined restoration failures of an ended session.
	Err error
}

// Observer receives lifecycle events.
type Observer func(Event)

// Selector picks the entity to possess. It returns nil when nothing is in range.
type Selector interface {
	Select() foreign.Entity
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func() foreign.Entity

func (f SelectorFunc) Select() foreign.Entity { return f() }
