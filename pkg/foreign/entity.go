// Package foreign declares what this extension needs from the runtime that
// owns the vehicles. Implementations live on the host side.
package foreign

import (
	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
)

// Kind is the class of a controllable unit.
type Kind uint8

const (
	KindNone Kind = iota
	KindShip
	KindGroundVehicle
)

func (k Kind) String() string {
	switch k {
	case KindShip:
		return "ship"
	case KindGroundVehicle:
		return "ground_vehicle"
	default:
		return "none"
	}
}

// Entity is an opaque handle to a unit owned by the foreign runtime.
type Entity interface {
	ID() string
	Name() string
	Kind() Kind
	// Live reports whether the unit still exists and has not been disabled.
	Live() bool
}

// GroundVehicle is a unit whose control inputs live in a native job block.
type GroundVehicle interface {
	Entity

	HoldPosition() bool
	SetHoldPosition(v bool) error
	Mobile() bool
	SetMobile(v bool) error

	// Block returns the native job data. When created is false the block
	// must not be read or written.
	Block() (b native.Block, created bool)
}

// Ship is a unit driven through managed inputs and a steering AI.
type Ship interface {
	Entity

	SetInputs(throttle, steering float32) error
	// SuppressAI stops the ship AI from steering while true.
	SuppressAI(v bool) error
}

// Kinematic is implemented by units that can report motion for display.
type Kinematic interface {
	// Speed is in metres per second.
	Speed() float32
	// Heading is in degrees, 0 to 360.
	Heading() float32
}
