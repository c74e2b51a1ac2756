// Package override writes the operator's control frame into the foreign
// vehicle job block at the moment the foreign consumer is about to read it.
package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

var (
	// ErrBlockNotLive means the job block is not created yet or already gone.
	// Callers skip the pass; it is not a failure.
	ErrBlockNotLive = errors.New("job block not live")
	// ErrAlreadyRegistered is returned when the job hook is registered twice.
	ErrAlreadyRegistered = errors.New("job hook already registered")
)

// Path identifies which call site performed a write.
type Path string

const (
	PathTick Path = "tick"
	PathHook Path = "hook"
)

// Write describes one completed pass of the write protocol.
type Write struct {
	EntityID      string
	Path          Path
	Frame         ControlFrame
	Native        Native
	MobileCleared bool
}

// Observer is told about every completed write. It must not block.
type Observer func(w Write)

// Dependencies holds what a Coordinator needs.
type Dependencies struct {
	Offsets *offsets.Cache
	Tuning  Tuning
	Logger  *slog.Logger
	// Trace receives a sampled record per write. Nil disables it.
	Trace *zerolog.Logger
}

// Coordinator owns the current control frame and the engaged unit.
type Coordinator struct {
	offsets *offsets.Cache
	tuning  Tuning
	logger  *slog.Logger
	trace   zerolog.Logger

	mu         sync.Mutex
	frame      ControlFrame
	vehicle    foreign.GroundVehicle
	ship       foreign.Ship
	registered bool
	observers  []Observer

	writes  metric.Int64Counter
	skipped metric.Int64Counter
}

// New creates a Coordinator. The tuning is validated here.
func New(deps Dependencies) (*Coordinator, error) {
	if deps.Offsets == nil {
		return nil, fmt.Errorf("offset cache is required")
	}
	if err := deps.Tuning.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		offsets: deps.Offsets,
		tuning:  deps.Tuning,
		logger:  deps.Logger,
		trace:   zerolog.Nop(),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if deps.Trace != nil {
		c.trace = *deps.Trace
	}

	m := meter()
	var err error
	c.writes, err = m.Int64Counter(
		"override.writes",
		metric.WithDescription("Control frames written into job blocks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating writes counter: %w", err)
	}
	c.skipped, err = m.Int64Counter(
		"override.skipped",
		metric.WithDescription("Write passes skipped"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	return c, nil
}

// Tuning returns the constants in use.
func (c *Coordinator) Tuning() Tuning {
	return c.tuning
}

// OnApply adds an observer for completed writes.
func (c *Coordinator) OnApply(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// SetFrame replaces the current frame. A frame outside the normalized ranges
// is clamped. An engaged ship receives its inputs immediately.
func (c *Coordinator) SetFrame(f ControlFrame) error {
	c.mu.Lock()
	c.frame = f.Clamp()
	ship := c.ship
	frame := c.frame
	c.mu.Unlock()

	if ship != nil {
		return ship.SetInputs(frame.Throttle, frame.Steering)
	}
	return nil
}

// Frame returns the current frame.
func (c *Coordinator) Frame() ControlFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// EngageVehicle makes v the target of both write paths.
func (c *Coordinator) EngageVehicle(v foreign.GroundVehicle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vehicle = v
	c.ship = nil
	c.frame = Neutral
}

// EngageShip makes s the target of frame updates.
func (c *Coordinator) EngageShip(s foreign.Ship) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ship = s
	c.vehicle = nil
	c.frame = Neutral
}

// Disengage stops all writes and resets the frame.
func (c *Coordinator) Disengage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vehicle = nil
	c.ship = nil
	c.frame = Neutral
}

// Engaged returns the unit currently written to, or nil.
func (c *Coordinator) Engaged() foreign.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.vehicle != nil:
		return c.vehicle
	case c.ship != nil:
		return c.ship
	}
	return nil
}

// Register installs the coordinator on the foreign job hook. Only one
// registration is allowed for the life of the coordinator.
func (c *Coordinator) Register(h foreign.Hookable) error {
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return ErrAlreadyRegistered
	}
	c.registered = true
	c.mu.Unlock()

	h.AcceptHook(c)
	return nil
}

// Func is the scheduling-callback path. It writes only when the hooked
// vehicle is the engaged one.
func (c *Coordinator) Func(ctx foreign.HookCtx) {
	if ctx.Pos != foreign.HookPosJobFieldsUpdated {
		return
	}
	item, ok := ctx.Item.(foreign.GroundVehicle)
	if !ok || item == nil {
		return
	}

	c.mu.Lock()
	v := c.vehicle
	c.mu.Unlock()
	if v == nil || v.ID() != item.ID() {
		return
	}
	c.run(v, PathHook)
}

// FixedTick is the tick-driven path.
func (c *Coordinator) FixedTick() {
	c.mu.Lock()
	v, ship, frame := c.vehicle, c.ship, c.frame
	c.mu.Unlock()

	switch {
	case v != nil:
		c.run(v, PathTick)
	case ship != nil:
		if err := ship.SetInputs(frame.Throttle, frame.Steering); err != nil {
			c.trace.Warn().Err(err).Str("entity", ship.ID()).Msg("ship inputs rejected")
		}
	}
}

func (c *Coordinator) run(v foreign.GroundVehicle, path Path) {
	_, err := c.apply(v, path)
	switch {
	case err == nil:
	case errors.Is(err, ErrBlockNotLive):
		c.skipped.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("reason", "not_live"), attribute.String("path", string(path))))
	case c.offsets.Available():
		c.skipped.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("reason", "write_failed"), attribute.String("path", string(path))))
		c.trace.Warn().Err(err).Str("path", string(path)).Str("entity", v.ID()).Msg("native write failed")
	default:
		// offsets unresolved, already logged by the cache
		c.skipped.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("reason", "unresolved"), attribute.String("path", string(path))))
	}
}

// Apply runs the write protocol once against v with the current frame.
func (c *Coordinator) Apply(v foreign.GroundVehicle) (Native, error) {
	return c.apply(v, PathTick)
}

func (c *Coordinator) apply(v foreign.GroundVehicle, path Path) (Native, error) {
	block, created := v.Block()
	if !created || block == nil {
		return Native{}, ErrBlockNotLive
	}
	o, err := c.offsets.Get()
	if err != nil {
		return Native{}, err
	}

	c.mu.Lock()
	frame := c.frame
	observers := c.observers
	c.mu.Unlock()

	out := c.tuning.Translate(frame)

	if o.HasMobile {
		if err := block.WriteU8(o.Mobile, 0); err != nil {
			return Native{}, liveness(err)
		}
	}
	if err := block.WriteF32(o.Throttle, out.Throttle); err != nil {
		return Native{}, liveness(err)
	}
	if err := block.WriteF32(o.Steering, out.Steering); err != nil {
		return Native{}, liveness(err)
	}
	if err := block.WriteF32(o.Brake, out.Brake); err != nil {
		return Native{}, liveness(err)
	}

	c.writes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("path", string(path))))
	c.trace.Debug().
		Str("path", string(path)).
		Str("entity", v.ID()).
		Float32("throttle", out.Throttle).
		Float32("steering", out.Steering).
		Float32("brake", out.Brake).
		Msg("native inputs written")

	w := Write{EntityID: v.ID(), Path: path, Frame: frame, Native: out, MobileCleared: o.HasMobile}
	for _, obs := range observers {
		obs(w)
	}
	return out, nil
}

func liveness(err error) error {
	if errors.Is(err, native.ErrNotLive) {
		return fmt.Errorf("%w: %w", ErrBlockNotLive, err)
	}
	return err
}

// Neutralize writes zero inputs and the given mobility flag into v's block.
// It is a no-op when the block is gone or the offsets never resolved.
func (c *Coordinator) Neutralize(v foreign.GroundVehicle, mobile bool) error {
	block, created := v.Block()
	if !created || block == nil {
		return nil
	}
	o, err := c.offsets.Get()
	if err != nil {
		return nil
	}

	var errs []error
	for _, off := range []uintptr{o.Throttle, o.Steering, o.Brake} {
		errs = append(errs, block.WriteF32(off, 0))
	}
	if o.HasMobile {
		errs = append(errs, native.WriteBool(block, o.Mobile, mobile))
	}
	return errors.Join(errs...)
}

// Probe reads the current native inputs of v, used to confirm access works
// before a session starts writing.
func (c *Coordinator) Probe(v foreign.GroundVehicle) (Native, error) {
	block, created := v.Block()
	if !created || block == nil {
		return Native{}, ErrBlockNotLive
	}
	o, err := c.offsets.Get()
	if err != nil {
		return Native{}, err
	}

	var n Native
	if n.Throttle, err = block.ReadF32(o.Throttle); err != nil {
		return Native{}, liveness(err)
	}
	if n.Steering, err = block.ReadF32(o.Steering); err != nil {
		return Native{}, liveness(err)
	}
	if n.Brake, err = block.ReadF32(o.Brake); err != nil {
		return Native{}, liveness(err)
	}
	return n, nil
}
