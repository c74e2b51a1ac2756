// Package handlers binds host commands to the possession lifecycle.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/dispatcher"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/journal"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/logging"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/util"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// Command names understood by the extension.
const (
	CmdPossess  = ":POSSESS:"
	CmdToggle   = ":TOGGLE:"
	CmdRelease  = ":RELEASE:"
	CmdControls = ":CONTROLS:"
	CmdStatus   = ":STATUS:"
	CmdOffsets  = ":OFFSETS:"
	CmdSessions = ":SESSIONS:"
	CmdLog      = ":LOG:"
	CmdVersion  = ":VERSION:"
)

var (
	// ErrMissingArgs is returned when a command lacks a required argument.
	ErrMissingArgs = errors.New("missing arguments")
	// ErrUnknownUnit is returned for a handle nobody registered.
	ErrUnknownUnit = errors.New("unknown unit")
)

// Units looks up entities by handle.
type Units interface {
	Get(handle string) (foreign.Entity, bool)
}

// UnitsFunc adapts a lookup function to Units.
type UnitsFunc func(handle string) (foreign.Entity, bool)

func (f UnitsFunc) Get(handle string) (foreign.Entity, bool) { return f(handle) }

// Dependencies holds all dependencies needed by handlers.
type Dependencies struct {
	Manager *possession.Manager
	Units   Units
	Offsets *offsets.Cache
	// Journal may be nil.
	Journal journal.Journal
	// Selector picks a unit for a toggle without a handle. It may be nil.
	Selector         possession.Selector
	LogManager       *logging.SlogManager
	ExtensionName    string
	ExtensionVersion string
}

// Service provides the command handlers.
type Service struct {
	deps         Dependencies
	writeLogFunc func(source, data, level string)
}

// NewService creates a new handler service.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Manager == nil {
		return nil, fmt.Errorf("possession manager is required")
	}
	if deps.Units == nil {
		return nil, fmt.Errorf("unit lookup is required")
	}
	s := &Service{deps: deps}
	s.writeLogFunc = func(source, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(source, data, level)
		}
	}
	return s, nil
}

// Register binds every command on d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdPossess, s.Possess, dispatcher.Logged())
	d.Register(CmdToggle, s.Toggle, dispatcher.Logged())
	d.Register(CmdRelease, s.Release, dispatcher.Logged())
	d.Register(CmdControls, s.Controls)
	d.Register(CmdStatus, s.Status)
	d.Register(CmdOffsets, s.Offsets, dispatcher.Logged())
	d.Register(CmdSessions, s.Sessions)
	d.Register(CmdLog, s.Log, dispatcher.Buffered(256))
	d.Register(CmdVersion, s.Version)
}

// SessionReply describes a session to the host.
type SessionReply struct {
	Session string `json:"session"`
	Unit    string `json:"unit"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
}

func reply(sess *possession.Session) any {
	if sess == nil {
		return nil
	}
	e := sess.Entity()
	return SessionReply{
		Session: sess.ID(),
		Unit:    e.ID(),
		Name:    e.Name(),
		Kind:    e.Kind().String(),
	}
}

func (s *Service) lookup(handle string) (foreign.Entity, error) {
	e, ok := s.deps.Units.Get(handle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, handle)
	}
	return e, nil
}

// Possess acquires the unit named by the first argument.
func (s *Service) Possess(e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	if len(args) < 1 || args[0] == "" {
		return nil, fmt.Errorf("%s: %w: unit handle", CmdPossess, ErrMissingArgs)
	}
	unit, err := s.lookup(args[0])
	if err != nil {
		return nil, err
	}
	sess, err := s.deps.Manager.Acquire(unit)
	if err != nil {
		return nil, err
	}
	return reply(sess), nil
}

// Toggle releases the active session or acquires a unit. The unit is the
// one named by the first argument, or the configured selector's pick.
func (s *Service) Toggle(e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	sel := s.deps.Selector
	if len(args) > 0 && args[0] != "" {
		unit, err := s.lookup(args[0])
		if err != nil {
			return nil, err
		}
		sel = possession.SelectorFunc(func() foreign.Entity { return unit })
	}
	sess, err := s.deps.Manager.Toggle(sel)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return s.deps.Manager.State().String(), nil
	}
	return reply(sess), nil
}

// Release ends the active session.
func (s *Service) Release(dispatcher.Event) (any, error) {
	if err := s.deps.Manager.Release(); err != nil {
		return nil, err
	}
	return possession.StateIdle.String(), nil
}

// Controls replaces the control frame: throttle, steering, brake.
func (s *Service) Controls(e dispatcher.Event) (any, error) {
	vals, err := util.Float32Args(util.CleanArgs(e.Args), 3)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CmdControls, err)
	}
	f := override.ControlFrame{Throttle: vals[0], Steering: vals[1], Brake: vals[2]}
	if err := s.deps.Manager.SetControls(f); err != nil {
		return nil, err
	}
	return "ok", nil
}

// StatusReply is the read-only view returned by :STATUS:.
type StatusReply struct {
	State    string                `json:"state"`
	Session  string                `json:"session,omitempty"`
	Name     string                `json:"name,omitempty"`
	Kind     string                `json:"kind,omitempty"`
	Frame    override.ControlFrame `json:"frame"`
	Speed    float32               `json:"speed"`
	Heading  float32               `json:"heading"`
	Duration float64               `json:"duration"`
}

// Status reports the current possession state.
func (s *Service) Status(dispatcher.Event) (any, error) {
	snap := s.deps.Manager.Snapshot()
	r := StatusReply{State: snap.State.String()}
	if snap.SessionID == "" {
		return r, nil
	}
	r.Session = snap.SessionID
	r.Name = snap.EntityName
	r.Kind = snap.Kind.String()
	r.Frame = snap.Frame
	r.Speed = snap.Speed
	r.Heading = snap.Heading
	r.Duration = time.Since(snap.Started).Seconds()
	return r, nil
}

// Offsets reports the resolved native offsets.
func (s *Service) Offsets(dispatcher.Event) (any, error) {
	if s.deps.Offsets == nil {
		return nil, fmt.Errorf("offset cache not configured")
	}
	return s.deps.Offsets.Get()
}

// Sessions returns the most recent journal entries. The optional argument
// is the limit, 10 by default.
func (s *Service) Sessions(e dispatcher.Event) (any, error) {
	if s.deps.Journal == nil {
		return []journal.SessionRecord{}, nil
	}
	limit := 10
	args := util.CleanArgs(e.Args)
	if len(args) > 0 && args[0] != "" {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s: invalid limit %q", CmdSessions, args[0])
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.deps.Journal.Sessions(ctx, limit)
}

// Log writes a host message: source, message and optional level.
func (s *Service) Log(e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	if len(args) < 2 {
		return nil, fmt.Errorf("%s: %w: source and message", CmdLog, ErrMissingArgs)
	}
	level := "info"
	if len(args) > 2 {
		level = args[2]
	}
	s.writeLogFunc(args[0], args[1], level)
	return nil, nil
}

// Version returns the extension version.
func (s *Service) Version(dispatcher.Event) (any, error) {
	return []string{s.deps.ExtensionName, s.deps.ExtensionVersion}, nil
}
