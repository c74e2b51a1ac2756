package simhost

import (
	"errors"
	"math"
	"sync"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// ErrDestroyed is returned by managed setters on a destroyed unit.
var ErrDestroyed = errors.New("unit destroyed")

// Vec is a position on the ground plane in metres.
type Vec struct {
	X, Z float64
}

// Dist returns the distance between two points.
func (v Vec) Dist(o Vec) float64 {
	return math.Hypot(v.X-o.X, v.Z-o.Z)
}

// Inputs are control values as a consumer read them.
type Inputs struct {
	Throttle float32
	Steering float32
	Brake    float32
}

// Driver is the unit's own automatic controller. It returns normalized
// throttle and steering.
type Driver interface {
	Drive(pos Vec, heading, speed float64) (throttle, steering float32)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(pos Vec, heading, speed float64) (float32, float32)

func (f DriverFunc) Drive(pos Vec, heading, speed float64) (float32, float32) {
	return f(pos, heading, speed)
}

// Cruise is a Driver holding fixed inputs.
type Cruise struct {
	Throttle, Steering float32
}

func (c Cruise) Drive(Vec, float64, float64) (float32, float32) {
	return c.Throttle, c.Steering
}

type unit struct {
	mu       sync.Mutex
	id       string
	name     string
	faction  string
	live     bool
	pos      Vec
	heading  float64
	speed    float64
	topSpeed float64
	driver   Driver
	last     Inputs
}

func (u *unit) ID() string   { return u.id }
func (u *unit) Name() string { return u.name }

func (u *unit) Faction() string { return u.faction }

func (u *unit) Live() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.live
}

func (u *unit) Position() Vec {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pos
}

func (u *unit) Speed() float32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return float32(math.Abs(u.speed))
}

func (u *unit) Heading() float32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return float32(u.heading)
}

// LastInputs returns what the unit's consumer used on the last update.
func (u *unit) LastInputs() Inputs {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

// integrate advances the unit; callers hold u.mu.
func (u *unit) integrate(in Inputs, turnRate, dt float64) {
	target := float64(in.Throttle) * u.topSpeed
	u.speed += (target - u.speed) * math.Min(1, dt*accelRate)
	u.speed *= 1 - math.Min(1, float64(in.Brake)*dt*brakeRate)

	grip := math.Min(1, math.Abs(u.speed)/2)
	u.heading = math.Mod(u.heading+float64(in.Steering)*turnRate*grip*dt+360, 360)

	rad := u.heading * math.Pi / 180
	u.pos.X += math.Sin(rad) * u.speed * dt
	u.pos.Z += math.Cos(rad) * u.speed * dt
	u.last = in
}

const (
	accelRate = 0.5
	brakeRate = 0.8

	// consumer clamp and native steering domain of ground vehicles
	vehicleThrottleMin = -0.7
	vehicleThrottleMax = 1
	vehicleSteerScale  = 10
	vehicleTurnRate    = 3

	shipTurnRate = 5
)

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}

// GroundVehicle keeps its control inputs in a native job block.
type GroundVehicle struct {
	unit
	world   *World
	block   native.Block
	created bool
	mobile  bool
	hold    bool
}

var (
	_ foreign.GroundVehicle = (*GroundVehicle)(nil)
	_ foreign.Kinematic     = (*GroundVehicle)(nil)
)

func (v *GroundVehicle) Kind() foreign.Kind { return foreign.KindGroundVehicle }

func (v *GroundVehicle) HoldPosition() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hold
}

func (v *GroundVehicle) SetHoldPosition(b bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.live {
		return ErrDestroyed
	}
	v.hold = b
	return nil
}

func (v *GroundVehicle) Mobile() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mobile
}

func (v *GroundVehicle) SetMobile(b bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.live {
		return ErrDestroyed
	}
	v.mobile = b
	return nil
}

func (v *GroundVehicle) Block() (native.Block, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.block, v.created && v.live
}

// updateJobFields copies managed state into the block, creating it on first use.
func (v *GroundVehicle) updateJobFields(alloc native.Allocator, lay jobLayout) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.created {
		b, err := alloc.Alloc(lay.size, lay.align)
		if err != nil {
			return err
		}
		v.block, v.created = b, true
	}
	if lay.hasMobile {
		if err := native.WriteBool(v.block, lay.mobile, v.mobile); err != nil {
			return err
		}
	}
	if lay.hasHold {
		if err := native.WriteBool(v.block, lay.hold, v.hold); err != nil {
			return err
		}
	}
	if lay.hasTop {
		if err := v.block.WriteF32(lay.topSpeed, float32(v.topSpeed)); err != nil {
			return err
		}
	}
	return nil
}

// runJob is the consumer: it reads the block and moves the vehicle.
func (v *GroundVehicle) runJob(lay jobLayout, dt float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	b := v.block

	mobile := v.mobile
	if lay.hasMobile {
		m, err := native.ReadBool(b, lay.mobile)
		if err != nil {
			return err
		}
		mobile = m
	}
	if mobile && v.driver != nil {
		t, s := v.driver.Drive(v.pos, v.heading, v.speed)
		t = clamp(t, -1, 1)
		if err := b.WriteF32(lay.throttle, t); err != nil {
			return err
		}
		if err := b.WriteF32(lay.steering, clamp(s, -1, 1)*vehicleSteerScale); err != nil {
			return err
		}
		if err := b.WriteF32(lay.brake, 1-float32(math.Abs(float64(t)))); err != nil {
			return err
		}
	}

	var in Inputs
	var err error
	if in.Throttle, err = b.ReadF32(lay.throttle); err != nil {
		return err
	}
	if in.Steering, err = b.ReadF32(lay.steering); err != nil {
		return err
	}
	if in.Brake, err = b.ReadF32(lay.brake); err != nil {
		return err
	}
	in.Throttle = clamp(in.Throttle, vehicleThrottleMin, vehicleThrottleMax)

	hold := v.hold
	if lay.hasHold {
		if hold, err = native.ReadBool(b, lay.hold); err != nil {
			return err
		}
	}
	if hold {
		in.Throttle = 0
	}
	v.integrate(in, vehicleTurnRate, dt)
	return nil
}

// Ship is driven through managed inputs and a steering AI.
type Ship struct {
	unit
	suppressed bool
	throttle   float32
	steering   float32
}

var (
	_ foreign.Ship      = (*Ship)(nil)
	_ foreign.Kinematic = (*Ship)(nil)
)

func (s *Ship) Kind() foreign.Kind { return foreign.KindShip }

func (s *Ship) SetInputs(throttle, steering float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return ErrDestroyed
	}
	s.throttle, s.steering = throttle, steering
	return nil
}

func (s *Ship) SuppressAI(b bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return ErrDestroyed
	}
	s.suppressed = b
	return nil
}

// Suppressed reports whether the ship AI is switched off.
func (s *Ship) Suppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}

func (s *Ship) update(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.suppressed && s.driver != nil {
		s.throttle, s.steering = s.driver.Drive(s.pos, s.heading, s.speed)
	}
	t := clamp(s.throttle, -1, 1)
	s.integrate(Inputs{Throttle: t, Steering: clamp(s.steering, -1, 1), Brake: 0}, shipTurnRate, dt)
}
