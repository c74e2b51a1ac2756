// Package hostentity adapts units registered by the host, described by raw
// addresses of their managed state and native job block, to the foreign
// entity contracts.
package hostentity

import (
	"fmt"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
)

const (
	vehicleStateType = "HostVehicleState"
	shipStateType    = "HostShipState"
)

type vehicleState struct {
	created, mobile, hold, disabled uintptr
	speed, heading                  uintptr
}

type shipState struct {
	disabled, suppress uintptr
	throttle, steering uintptr
	speed, heading     uintptr
}

// Layouts are the offsets inside the host's managed state records.
type Layouts struct {
	vehicle vehicleState
	ship    shipState
}

// NewLayouts places the host state records declared in s.
func NewLayouts(s *layout.Schema, r layout.Resolver) (Layouts, error) {
	var l Layouts
	if err := place(s, r, vehicleStateType, map[string]*uintptr{
		"created":      &l.vehicle.created,
		"mobile":       &l.vehicle.mobile,
		"holdPosition": &l.vehicle.hold,
		"disabled":     &l.vehicle.disabled,
		"speed":        &l.vehicle.speed,
		"heading":      &l.vehicle.heading,
	}); err != nil {
		return Layouts{}, err
	}
	if err := place(s, r, shipStateType, map[string]*uintptr{
		"disabled":   &l.ship.disabled,
		"suppressAI": &l.ship.suppress,
		"throttle":   &l.ship.throttle,
		"steering":   &l.ship.steering,
		"speed":      &l.ship.speed,
		"heading":    &l.ship.heading,
	}); err != nil {
		return Layouts{}, err
	}
	return l, nil
}

func place(s *layout.Schema, r layout.Resolver, typeName string, dst map[string]*uintptr) error {
	fields, err := s.Shape(typeName)
	if err != nil {
		return err
	}
	l := r.Place(fields)
	for name, p := range dst {
		off, ok := l.Offset(name)
		if !ok {
			return &layout.UnresolvedError{Aggregate: typeName, Field: name}
		}
		*p = off
	}
	return nil
}

// VehicleStateSize is the size of the host vehicle record.
func VehicleStateSize(s *layout.Schema, r layout.Resolver) (uintptr, error) {
	return size(s, r, vehicleStateType)
}

// ShipStateSize is the size of the host ship record.
func ShipStateSize(s *layout.Schema, r layout.Resolver) (uintptr, error) {
	return size(s, r, shipStateType)
}

func size(s *layout.Schema, r layout.Resolver, typeName string) (uintptr, error) {
	fields, err := s.Shape(typeName)
	if err != nil {
		return 0, fmt.Errorf("host state %s: %w", typeName, err)
	}
	return r.Place(fields).Size, nil
}
