package hostentity

import (
	"sync"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// GroundVehicle reads and writes the host's managed vehicle record. The job
// block address can move; the host reports the current one with every
// job-fields notification.
type GroundVehicle struct {
	id, name string
	lay      vehicleState
	state    native.Block

	mu    sync.Mutex
	block native.Block
}

var (
	_ foreign.GroundVehicle = (*GroundVehicle)(nil)
	_ foreign.Kinematic     = (*GroundVehicle)(nil)
)

func (v *GroundVehicle) ID() string         { return v.id }
func (v *GroundVehicle) Name() string       { return v.name }
func (v *GroundVehicle) Kind() foreign.Kind { return foreign.KindGroundVehicle }

func (v *GroundVehicle) Live() bool {
	disabled, err := native.ReadBool(v.state, v.lay.disabled)
	return err == nil && !disabled
}

func (v *GroundVehicle) HoldPosition() bool {
	b, _ := native.ReadBool(v.state, v.lay.hold)
	return b
}

func (v *GroundVehicle) SetHoldPosition(b bool) error {
	return native.WriteBool(v.state, v.lay.hold, b)
}

func (v *GroundVehicle) Mobile() bool {
	b, _ := native.ReadBool(v.state, v.lay.mobile)
	return b
}

func (v *GroundVehicle) SetMobile(b bool) error {
	return native.WriteBool(v.state, v.lay.mobile, b)
}

func (v *GroundVehicle) Block() (native.Block, bool) {
	created, err := native.ReadBool(v.state, v.lay.created)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.block, err == nil && created && v.block != nil
}

func (v *GroundVehicle) setBlock(b native.Block) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.block = b
}

func (v *GroundVehicle) Speed() float32 {
	f, _ := v.state.ReadF32(v.lay.speed)
	return f
}

func (v *GroundVehicle) Heading() float32 {
	f, _ := v.state.ReadF32(v.lay.heading)
	return f
}

// Ship reads and writes the host's managed ship record.
type Ship struct {
	id, name string
	lay      shipState
	state    native.Block
}

var (
	_ foreign.Ship      = (*Ship)(nil)
	_ foreign.Kinematic = (*Ship)(nil)
)

func (s *Ship) ID() string         { return s.id }
func (s *Ship) Name() string       { return s.name }
func (s *Ship) Kind() foreign.Kind { return foreign.KindShip }

func (s *Ship) Live() bool {
	disabled, err := native.ReadBool(s.state, s.lay.disabled)
	return err == nil && !disabled
}

func (s *Ship) SetInputs(throttle, steering float32) error {
	if err := s.state.WriteF32(s.lay.throttle, throttle); err != nil {
		return err
	}
	return s.state.WriteF32(s.lay.steering, steering)
}

func (s *Ship) SuppressAI(b bool) error {
	return native.WriteBool(s.state, s.lay.suppress, b)
}

func (s *Ship) Speed() float32 {
	f, _ := s.state.ReadF32(s.lay.speed)
	return f
}

func (s *Ship) Heading() float32 {
	f, _ := s.state.ReadF32(s.lay.heading)
	return f
}
