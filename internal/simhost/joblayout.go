package simhost

import (
	"fmt"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
)

// jobLayout is where the simulated runtime itself keeps each job field. It is
// computed by placing the whole declared shape, without the checks the
// offset cache applies.
type jobLayout struct {
	size, align uintptr

	mobile    uintptr
	hasMobile bool
	hold      uintptr
	hasHold   bool
	topSpeed  uintptr
	hasTop    bool

	throttle, brake, steering uintptr
}

func newJobLayout(s *layout.Schema, r layout.Resolver, n offsets.Names) (jobLayout, error) {
	fields, err := s.Shape(n.Outer)
	if err != nil {
		return jobLayout{}, err
	}
	outer := r.Place(fields)
	lay := jobLayout{size: outer.Size, align: outer.Align}

	var inputs *layout.Placement
	for i := range outer.Fields {
		if outer.Fields[i].Field.Name == n.Inputs {
			inputs = &outer.Fields[i]
			break
		}
	}
	if inputs == nil || inputs.Field.Kind != layout.KindAggregate {
		return jobLayout{}, fmt.Errorf("job shape %s has no %s aggregate", n.Outer, n.Inputs)
	}
	inner := r.Place(inputs.Field.Members)
	for name, dst := range map[string]*uintptr{
		n.Throttle: &lay.throttle,
		n.Brake:    &lay.brake,
		n.Steering: &lay.steering,
	} {
		off, ok := inner.Offset(name)
		if !ok {
			return jobLayout{}, fmt.Errorf("job shape %s has no %s input", n.Outer, name)
		}
		*dst = inputs.Offset + off
	}

	lay.mobile, lay.hasMobile = outer.Offset(n.Mobile)
	lay.hold, lay.hasHold = outer.Offset("holdPosition")
	lay.topSpeed, lay.hasTop = outer.Offset("topSpeed")
	return lay, nil
}
