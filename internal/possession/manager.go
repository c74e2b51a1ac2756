// Package possession owns the lifecycle of taking over a unit and handing it
// back: Idle, Active, and a transient ForcedRelease when the unit goes away.
package possession

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// Dependencies holds what a Manager needs.
type Dependencies struct {
	Coordinator *override.Coordinator
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager enforces a single session at a time.
type Manager struct {
	coord  *override.Coordinator
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	session   *Session
	observers []Observer
}

// NewManager creates an idle Manager.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	m := &Manager{
		coord:  deps.Coordinator,
		logger: deps.Logger,
		now:    deps.Now,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Observe adds a lifecycle observer.
func (m *Manager) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsActive() bool {
	return m.State() == StateActive
}

// Session returns the active session or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Acquire takes over e. A nil entity is a no-op. Acquiring while a session is
// active is rejected and leaves that session untouched.
func (m *Manager) Acquire(e foreign.Entity) (*Session, error) {
	if e == nil {
		return nil, nil
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	s, err := m.acquire(e)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.state = StateActive
	m.session = s
	observers := m.observers
	m.mu.Unlock()

	m.logger.Info("Possession started",
		"session", s.ID(),
		"entity", e.Name(),
		"kind", e.Kind().String())
	notify(observers, Event{Type: EventStarted, Session: s.info()})
	return s, nil
}

func (m *Manager) acquire(e foreign.Entity) (*Session, error) {
	if !guardedLive(e) {
		return nil, fmt.Errorf("%w: %s", ErrEntityInvalidated, e.Name())
	}

	s := &Session{
		id:      xid.New(),
		manager: m,
		entity:  e,
		started: m.now(),
	}

	switch u := e.(type) {
	case foreign.GroundVehicle:
		saved, err := m.takeVehicle(u)
		if err != nil {
			return nil, err
		}
		s.saved = saved
	case foreign.Ship:
		if err := guard(func() error { return u.SuppressAI(true) }); err != nil {
			return nil, fmt.Errorf("suppressing ship AI: %w", err)
		}
		m.coord.EngageShip(u)
		if err := m.coord.SetFrame(override.Neutral); err != nil {
			m.logger.Warn("Ship rejected neutral inputs", "entity", u.Name(), "error", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s is a %s", ErrUnsupportedEntity, e.Name(), e.Kind())
	}
	return s, nil
}

func (m *Manager) takeVehicle(v foreign.GroundVehicle) (Saved, error) {
	var saved Saved
	if err := guard(func() error { saved.HoldPosition = v.HoldPosition(); return nil }); err != nil {
		return Saved{}, fmt.Errorf("taking %s: reading hold position: %w", v.Name(), err)
	}
	if err := guard(func() error { saved.Mobile = v.Mobile(); return nil }); err != nil {
		return Saved{}, fmt.Errorf("taking %s: reading mobility: %w", v.Name(), err)
	}

	if err := guard(func() error { return v.SetHoldPosition(false) }); err != nil {
		return Saved{}, fmt.Errorf("taking %s: %w", v.Name(), err)
	}
	if err := guard(func() error { return v.SetMobile(false) }); err != nil {
		// only the hold position was flipped
		if rerr := guard(func() error { return v.SetHoldPosition(saved.HoldPosition) }); rerr != nil {
			m.logger.Error("Failed to put hold position back after a failed take",
				"entity", v.Name(), "hold", saved.HoldPosition, "error", rerr)
		}
		return Saved{}, fmt.Errorf("taking %s: %w", v.Name(), err)
	}

	n, err := m.coord.Probe(v)
	switch {
	case err == nil:
		m.logger.Info("Native inputs readable",
			"entity", v.Name(),
			"throttle", n.Throttle,
			"steering", n.Steering,
			"brake", n.Brake)
	case errors.Is(err, override.ErrBlockNotLive):
		m.logger.Debug("Job block not created yet", "entity", v.Name())
	case errors.Is(err, layout.ErrUnresolved):
		// the cache already logged it; possession works without native writes
	default:
		m.logger.Warn("Native probe failed", "entity", v.Name(), "error", err)
	}

	m.coord.EngageVehicle(v)
	return saved, nil
}

// Toggle releases the active session, or acquires what sel picks.
func (m *Manager) Toggle(sel Selector) (*Session, error) {
	if m.IsActive() {
		return nil, m.Release()
	}
	if sel == nil {
		return nil, nil
	}
	e := sel.Select()
	if e == nil {
		m.logger.Info("No unit in range to possess")
		return nil, nil
	}
	return m.Acquire(e)
}

// Release ends the active session and restores the unit. Releasing while
// idle is a no-op. The session is torn down even when some restoration
// steps fail; those failures are returned joined.
func (m *Manager) Release() error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	s := m.session
	err := m.teardown(s)
	m.clear()
	observers := m.observers
	m.mu.Unlock()

	info := s.info()
	info.Ended = m.now()
	info.Reason = "released"

	if err != nil {
		m.logger.Warn("Possession released with restore failures", "session", info.ID, "error", err)
	} else {
		m.logger.Info("Possession released", "session", info.ID, "entity", info.EntityName)
	}
	notify(observers, Event{Type: EventEnded, Session: info, Err: err})
	return err
}

// ForceRelease tears the session down best effort. It never fails and
// restores at most once per session.
func (m *Manager) ForceRelease(reason string) {
	m.mu.Lock()
	m.forceRelease(reason)
}

// forceRelease must be called with m.mu held and releases it.
func (m *Manager) forceRelease(reason string) {
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateForcedRelease
	s := m.session
	err := m.teardown(s)
	m.clear()
	observers := m.observers
	m.mu.Unlock()

	info := s.info()
	info.Ended = m.now()
	info.Forced = true
	info.Reason = reason

	m.logger.Warn("Possession forcibly released",
		"session", info.ID,
		"entity", info.EntityName,
		"reason", reason,
		"error", err)
	notify(observers, Event{Type: EventEnded, Session: info, Err: err})
}

// Tick checks the possessed unit once per frame. When it is gone the session
// is forcibly released and ErrEntityInvalidated is returned.
func (m *Manager) Tick() error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	e := m.session.entity
	if guardedLive(e) {
		m.mu.Unlock()
		return nil
	}
	m.forceRelease("entity no longer live")
	return fmt.Errorf("%w: %s", ErrEntityInvalidated, e.Name())
}

// FixedTick drives the coordinator's tick path while a session is active.
func (m *Manager) FixedTick() {
	if !m.IsActive() {
		return
	}
	m.coord.FixedTick()
}

// OnEntityDisabled is the disable notification from the foreign runtime.
func (m *Manager) OnEntityDisabled(e foreign.Entity) {
	if e == nil {
		return
	}
	m.mu.Lock()
	if m.state != StateActive || m.session.entity.ID() != e.ID() {
		m.mu.Unlock()
		return
	}
	m.forceRelease("entity disabled")
}

// Func makes the Manager a foreign hook: disable notifications force a
// release, every other position is ignored.
func (m *Manager) Func(ctx foreign.HookCtx) {
	if ctx.Pos != foreign.HookPosUnitDisabled {
		return
	}
	if e, ok := ctx.Item.(foreign.Entity); ok {
		m.OnEntityDisabled(e)
	}
}

// SetControls replaces the control frame of the active session.
func (m *Manager) SetControls(f override.ControlFrame) error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.mu.Unlock()
	return m.coord.SetFrame(f)
}

func (m *Manager) setControls(s *Session, f override.ControlFrame) error {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.mu.Unlock()
	return m.coord.SetFrame(f)
}

// teardown runs every restoration step for s, each guarded on its own.
func (m *Manager) teardown(s *Session) error {
	m.coord.Disengage()

	var errs []error
	step := func(name string, fn func() error) {
		if err := guard(fn); err != nil {
			errs = append(errs, &RestoreError{Step: name, Cause: err})
		}
	}

	switch u := s.entity.(type) {
	case foreign.GroundVehicle:
		step("neutral inputs", func() error { return m.coord.Neutralize(u, s.saved.Mobile) })
		step("mobile", func() error { return u.SetMobile(s.saved.Mobile) })
		step("hold position", func() error { return u.SetHoldPosition(s.saved.HoldPosition) })
	case foreign.Ship:
		step("neutral inputs", func() error { return u.SetInputs(0, 0) })
		step("ship AI", func() error { return u.SuppressAI(false) })
	}
	return errors.Join(errs...)
}

func (m *Manager) clear() {
	m.session.closed.Store(true)
	m.session = nil
	m.state = StateIdle
}

// LogAttrs describes the active session for log records.
func (m *Manager) LogAttrs() []slog.Attr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("session", m.session.ID()),
		slog.String("unit", m.session.entity.Kind().String()),
	}
}

func notify(observers []Observer, ev Event) {
	for _, o := range observers {
		o(ev)
	}
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func guardedLive(e foreign.Entity) (live bool) {
	defer func() {
		if recover() != nil {
			live = false
		}
	}()
	return e.Live()
}
