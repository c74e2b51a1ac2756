package possession

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

const shapes = `
types:
  VehicleInputs:
    - {name: throttle, kind: float}
    - {name: brake, kind: float}
    - {name: steering, kind: float}
  GroundVehicleFields:
    - {name: mobile, kind: bool}
    - {name: inputs, type: VehicleInputs}
`

type vehicle struct {
	id   string
	buf  *native.Buffer
	live bool

	hold, mobile bool
	mobileSets   int
	holdSets     int

	failHold    error
	panicMobile bool
	restoring   bool

	// faults while a session is being taken
	panicGetMobile  bool
	failTakeMobile  error
	failRestoreHold error
}

func newVehicle(id string) *vehicle {
	buf := native.NewBuffer(16, 4)
	buf.Bytes()[0] = 1
	return &vehicle{id: id, buf: buf, live: true, hold: true, mobile: true}
}

func (v *vehicle) ID() string         { return v.id }
func (v *vehicle) Name() string       { return "Tank " + v.id }
func (v *vehicle) Kind() foreign.Kind { return foreign.KindGroundVehicle }
func (v *vehicle) Live() bool         { return v.live }
func (v *vehicle) HoldPosition() bool { return v.hold }
func (v *vehicle) Mobile() bool {
	if v.panicGetMobile {
		panic("getter faulted")
	}
	return v.mobile
}
func (v *vehicle) Speed() float32     { return 10 }
func (v *vehicle) Heading() float32   { return 90 }

func (v *vehicle) SetHoldPosition(b bool) error {
	v.holdSets++
	if v.restoring && v.failHold != nil {
		return v.failHold
	}
	if b && v.failRestoreHold != nil {
		return v.failRestoreHold
	}
	v.hold = b
	return nil
}

func (v *vehicle) SetMobile(b bool) error {
	v.mobileSets++
	if v.restoring && v.panicMobile {
		panic("unit destroyed")
	}
	if !v.restoring && v.failTakeMobile != nil {
		return v.failTakeMobile
	}
	v.mobile = b
	return nil
}

func (v *vehicle) Block() (native.Block, bool) { return v.buf, v.live }

func (v *vehicle) f32(t *testing.T, off uintptr) float32 {
	t.Helper()
	f, err := v.buf.ReadF32(off)
	require.NoError(t, err)
	return f
}

type ship struct {
	id                 string
	live               bool
	suppressed         bool
	throttle, steering float32
}

func (s *ship) ID() string              { return s.id }
func (s *ship) Name() string            { return "Corvette " + s.id }
func (s *ship) Kind() foreign.Kind      { return foreign.KindShip }
func (s *ship) Live() bool              { return s.live }
func (s *ship) SuppressAI(b bool) error { s.suppressed = b; return nil }
func (s *ship) SetInputs(t, st float32) error {
	s.throttle, s.steering = t, st
	return nil
}

type other struct{}

func (other) ID() string         { return "x" }
func (other) Name() string       { return "Balloon" }
func (other) Kind() foreign.Kind { return foreign.KindNone }
func (other) Live() bool         { return true }

func newManager(t *testing.T, src string) (*Manager, *override.Coordinator) {
	t.Helper()
	s, err := layout.LoadSchema(strings.NewReader(src))
	require.NoError(t, err)
	cache := offsets.NewSchemaCache(s, layout.NewResolver(0), offsets.DefaultNames(), nil)
	coord, err := override.New(override.Dependencies{Offsets: cache, Tuning: override.DefaultTuning()})
	require.NoError(t, err)

	m, err := NewManager(Dependencies{
		Coordinator: coord,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return m, coord
}

func TestAcquire_NilIsNoop(t *testing.T) {
	m, _ := newManager(t, shapes)
	s, err := m.Acquire(nil)
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, StateIdle, m.State())
}

func TestAcquire_GroundVehicle(t *testing.T) {
	m, coord := newManager(t, shapes)
	v := newVehicle("1")

	var events []Event
	m.Observe(func(ev Event) { events = append(events, ev) })

	s, err := m.Acquire(v)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.True(t, m.IsActive())
	assert.True(t, s.Active())
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, Saved{HoldPosition: true, Mobile: true}, s.Saved())
	assert.False(t, v.hold)
	assert.False(t, v.mobile)
	assert.Equal(t, v, coord.Engaged())

	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, "1", events[0].Session.EntityID)
}

func TestAcquire_RejectedWhileActive(t *testing.T) {
	m, coord := newManager(t, shapes)
	first := newVehicle("1")
	second := newVehicle("2")

	s, err := m.Acquire(first)
	require.NoError(t, err)
	require.NoError(t, s.SetControls(override.ControlFrame{Throttle: 0.4}))

	_, err = m.Acquire(second)
	assert.ErrorIs(t, err, ErrSessionActive)

	assert.Same(t, s, m.Session())
	assert.Equal(t, first, coord.Engaged())
	assert.Equal(t, float32(0.4), coord.Frame().Throttle)
	assert.True(t, second.mobile, "second unit must be untouched")
	assert.True(t, second.hold)
}

func TestAcquire_DeadEntity(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	v.live = false

	_, err := m.Acquire(v)
	assert.ErrorIs(t, err, ErrEntityInvalidated)
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, v.mobile)
}

func TestAcquire_FaultingGetterLeavesUnitUntouched(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	v.panicGetMobile = true

	_, err := m.Acquire(v)
	require.ErrorContains(t, err, "reading mobility: panic: getter faulted")
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, v.hold)
	assert.True(t, v.mobile)
	assert.Zero(t, v.holdSets)
	assert.Zero(t, v.mobileSets)
}

func TestAcquire_FailedTakeRollsBackHoldOnly(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	v.failTakeMobile = errors.New("job locked")

	_, err := m.Acquire(v)
	require.ErrorContains(t, err, "job locked")
	assert.False(t, m.IsActive())
	assert.True(t, v.hold)
	assert.True(t, v.mobile)
	assert.Equal(t, 2, v.holdSets)
	assert.Equal(t, 1, v.mobileSets)
}

func TestAcquire_FailedRollbackIsLogged(t *testing.T) {
	s, err := layout.LoadSchema(strings.NewReader(shapes))
	require.NoError(t, err)
	cache := offsets.NewSchemaCache(s, layout.NewResolver(0), offsets.DefaultNames(), nil)
	coord, err := override.New(override.Dependencies{Offsets: cache, Tuning: override.DefaultTuning()})
	require.NoError(t, err)
	var buf bytes.Buffer
	m, err := NewManager(Dependencies{Coordinator: coord, Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	require.NoError(t, err)

	v := newVehicle("1")
	v.failTakeMobile = errors.New("job locked")
	v.failRestoreHold = errors.New("unit busy")

	_, err = m.Acquire(v)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Failed to put hold position back")
	assert.Contains(t, buf.String(), "unit busy")
}

func TestAcquire_Unsupported(t *testing.T) {
	m, _ := newManager(t, shapes)
	_, err := m.Acquire(other{})
	assert.ErrorIs(t, err, ErrUnsupportedEntity)
	assert.False(t, m.IsActive())
}

func TestAcquire_UnresolvedLayoutStillPossesses(t *testing.T) {
	m, coord := newManager(t, `
types:
  GroundVehicleFields:
    - {name: mobile, kind: bool}
`)
	v := newVehicle("1")
	_, err := m.Acquire(v)
	require.NoError(t, err)
	assert.True(t, m.IsActive())

	require.NoError(t, m.SetControls(override.ControlFrame{Throttle: 1}))
	assert.NotPanics(t, m.FixedTick)
	assert.Equal(t, uint8(1), v.buf.Bytes()[0])
	assert.Equal(t, v, coord.Engaged())
}

func TestRelease_RestoresAndIsIdempotent(t *testing.T) {
	m, coord := newManager(t, shapes)
	v := newVehicle("1")

	s, err := m.Acquire(v)
	require.NoError(t, err)
	require.NoError(t, m.SetControls(override.ControlFrame{Throttle: 1, Steering: 0.5}))
	m.FixedTick()
	assert.Equal(t, float32(1), v.f32(t, 4))
	assert.Equal(t, uint8(0), v.buf.Bytes()[0])

	require.NoError(t, m.Release())

	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, coord.Engaged())
	assert.True(t, v.hold)
	assert.True(t, v.mobile)
	assert.Equal(t, uint8(1), v.buf.Bytes()[0])
	assert.Zero(t, v.f32(t, 4))
	assert.Zero(t, v.f32(t, 8))
	assert.Zero(t, v.f32(t, 12))

	assert.NoError(t, m.Release())
	assert.Equal(t, 2, v.mobileSets, "restored exactly once")

	assert.False(t, s.Active())
	assert.ErrorIs(t, s.SetControls(override.ControlFrame{}), ErrSessionClosed)
	assert.ErrorIs(t, m.SetControls(override.ControlFrame{}), ErrNoSession)
}

func TestRelease_StepFailuresAreJoined(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	v.failHold = errors.New("rejected")
	v.panicMobile = true

	_, err := m.Acquire(v)
	require.NoError(t, err)
	require.NoError(t, m.SetControls(override.ControlFrame{Throttle: 1}))
	m.FixedTick()

	var ended []Event
	m.Observe(func(ev Event) {
		if ev.Type == EventEnded {
			ended = append(ended, ev)
		}
	})

	v.restoring = true
	err = m.Release()
	require.Error(t, err)

	var re *RestoreError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "restore mobile: panic: unit destroyed")
	assert.Contains(t, err.Error(), "restore hold position: rejected")

	assert.Equal(t, StateIdle, m.State())
	assert.Zero(t, v.f32(t, 4), "neutral inputs still written")
	assert.Equal(t, 2, v.holdSets, "hold position still attempted")

	require.Len(t, ended, 1)
	assert.Equal(t, err, ended[0].Err)
	assert.False(t, ended[0].Session.Forced)
}

func TestTick_ForcedReleaseOnDisable(t *testing.T) {
	m, coord := newManager(t, shapes)
	v := newVehicle("1")

	var ended []Event
	m.Observe(func(ev Event) {
		if ev.Type == EventEnded {
			ended = append(ended, ev)
		}
	})

	_, err := m.Acquire(v)
	require.NoError(t, err)
	assert.NoError(t, m.Tick())

	v.live = false
	err = m.Tick()
	assert.ErrorIs(t, err, ErrEntityInvalidated)
	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, coord.Engaged())

	assert.NoError(t, m.Tick())
	m.ForceRelease("again")
	assert.NoError(t, m.Release())

	assert.True(t, v.hold)
	assert.True(t, v.mobile)
	assert.Equal(t, 2, v.mobileSets)
	assert.Equal(t, 2, v.holdSets)

	require.Len(t, ended, 1)
	assert.True(t, ended[0].Session.Forced)
	assert.Equal(t, "entity no longer live", ended[0].Session.Reason)
}

func TestForceRelease_NeverPanics(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	v.panicMobile = true
	v.failHold = errors.New("gone")

	_, err := m.Acquire(v)
	require.NoError(t, err)

	v.restoring = true
	v.buf.Release()
	assert.NotPanics(t, func() { m.ForceRelease("test") })
	assert.Equal(t, StateIdle, m.State())
}

func TestOnEntityDisabled(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")

	_, err := m.Acquire(v)
	require.NoError(t, err)

	m.OnEntityDisabled(newVehicle("2"))
	assert.True(t, m.IsActive())

	m.OnEntityDisabled(nil)
	assert.True(t, m.IsActive())

	m.OnEntityDisabled(v)
	assert.False(t, m.IsActive())
	assert.True(t, v.mobile)
}

func TestManagerAsDisableHook(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	_, err := m.Acquire(v)
	require.NoError(t, err)

	m.Func(foreign.HookCtx{Pos: foreign.HookPosJobFieldsUpdated, Item: v})
	assert.True(t, m.IsActive())

	m.Func(foreign.HookCtx{Pos: foreign.HookPosUnitDisabled, Item: "not an entity"})
	assert.True(t, m.IsActive())

	m.Func(foreign.HookCtx{Pos: foreign.HookPosUnitDisabled, Item: v})
	assert.False(t, m.IsActive())
}

func TestShipPossession(t *testing.T) {
	m, coord := newManager(t, shapes)
	sh := &ship{id: "s1", live: true, throttle: 0.8, steering: 0.2}

	s, err := m.Acquire(sh)
	require.NoError(t, err)
	assert.Equal(t, foreign.KindShip, s.Kind())
	assert.True(t, sh.suppressed)
	assert.Zero(t, sh.throttle, "inputs zeroed on acquire")

	require.NoError(t, s.SetControls(override.ControlFrame{Throttle: 0.5, Steering: -0.25}))
	assert.Equal(t, float32(0.5), sh.throttle)
	assert.Equal(t, float32(-0.25), sh.steering)

	sh.throttle = 0
	m.FixedTick()
	assert.Equal(t, float32(0.5), sh.throttle)

	require.NoError(t, m.Release())
	assert.False(t, sh.suppressed)
	assert.Zero(t, sh.throttle)
	assert.Zero(t, sh.steering)
	assert.Nil(t, coord.Engaged())
}

func TestToggle(t *testing.T) {
	m, _ := newManager(t, shapes)
	v := newVehicle("1")
	sel := SelectorFunc(func() foreign.Entity { return v })

	s, err := m.Toggle(sel)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, m.IsActive())

	s, err = m.Toggle(sel)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, m.IsActive())

	s, err = m.Toggle(SelectorFunc(func() foreign.Entity { return nil }))
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, m.IsActive())
}

func TestSnapshotAndLogAttrs(t *testing.T) {
	m, _ := newManager(t, shapes)
	assert.Equal(t, Snapshot{State: StateIdle}, m.Snapshot())
	assert.Nil(t, m.LogAttrs())

	v := newVehicle("1")
	s, err := m.Acquire(v)
	require.NoError(t, err)
	require.NoError(t, m.SetControls(override.ControlFrame{Throttle: 0.25, Steering: 2}))

	snap := m.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, s.ID(), snap.SessionID)
	assert.Equal(t, "1", snap.EntityID)
	assert.Equal(t, "Tank 1", snap.EntityName)
	assert.Equal(t, foreign.KindGroundVehicle, snap.Kind)
	assert.Equal(t, override.ControlFrame{Throttle: 0.25, Steering: 1}, snap.Frame)
	assert.True(t, snap.Motion)
	assert.Equal(t, float32(10), snap.Speed)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.LogAttrs(t.Context(), slog.LevelInfo, "x", m.LogAttrs()...)
	assert.Contains(t, buf.String(), "session="+s.ID())
	assert.Contains(t, buf.String(), "unit=ground_vehicle")
}

func TestInfoDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := Info{Started: start}
	assert.Zero(t, i.Duration())
	i.Ended = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, i.Duration())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "forced_release", StateForcedRelease.String())
}
