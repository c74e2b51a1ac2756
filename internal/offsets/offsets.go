// Package offsets resolves the handful of byte offsets the override path
// needs inside the foreign vehicle job block, once per process.
package offsets

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
)

// Names identifies the foreign types and members to resolve.
type Names struct {
	Outer    string
	Inner    string
	Inputs   string
	Mobile   string
	Throttle string
	Brake    string
	Steering string
}

// DefaultNames matches the shapes shipped in the default schema.
func DefaultNames() Names {
	return Names{
		Outer:    "GroundVehicleFields",
		Inner:    "VehicleInputs",
		Inputs:   "inputs",
		Mobile:   "mobile",
		Throttle: "throttle",
		Brake:    "brake",
		Steering: "steering",
	}
}

// Offsets are absolute byte offsets from the start of the outer block.
type Offsets struct {
	Inputs   uintptr `json:"inputs"`
	Throttle uintptr `json:"throttle"`
	Brake    uintptr `json:"brake"`
	Steering uintptr `json:"steering"`

	// Mobile is only meaningful when HasMobile is set.
	Mobile    uintptr `json:"mobile"`
	HasMobile bool    `json:"hasMobile"`

	// BlockSize and BlockAlign describe the whole outer aggregate.
	BlockSize  uintptr `json:"blockSize"`
	BlockAlign uintptr `json:"blockAlign"`
}

func (o Offsets) LogValue() slog.Value {
	mobile := int64(-1)
	if o.HasMobile {
		mobile = int64(o.Mobile)
	}
	return slog.GroupValue(
		slog.Int64("mobile", mobile),
		slog.Uint64("inputs", uint64(o.Inputs)),
		slog.Uint64("throttle", uint64(o.Throttle)),
		slog.Uint64("steering", uint64(o.Steering)),
		slog.Uint64("brake", uint64(o.Brake)),
		slog.Uint64("blockSize", uint64(o.BlockSize)),
	)
}

func unresolved(format string, args ...any) error {
	return fmt.Errorf("%w: %s", layout.ErrUnresolved, fmt.Sprintf(format, args...))
}

// Resolve computes Offsets from a schema. The scan of the outer aggregate
// stops at the inputs member; the mobility flag is found by its own scan and
// may be absent.
func Resolve(schema *layout.Schema, r layout.Resolver, n Names) (Offsets, error) {
	outer, err := schema.Shape(n.Outer)
	if err != nil {
		return Offsets{}, unresolved("outer type: %v", err)
	}

	inputs, err := r.Find(n.Outer, outer, n.Inputs)
	if err != nil {
		return Offsets{}, err
	}
	if inputs.Field.Kind != layout.KindAggregate {
		return Offsets{}, unresolved("%s.%s is %s, not an aggregate", n.Outer, n.Inputs, inputs.Field.Kind)
	}
	if inputs.Field.TypeName != "" && n.Inner != "" && inputs.Field.TypeName != n.Inner {
		return Offsets{}, unresolved("%s.%s has type %s, expected %s", n.Outer, n.Inputs, inputs.Field.TypeName, n.Inner)
	}

	inner := inputs.Field.Members
	innerName := n.Inner
	if innerName == "" {
		innerName = n.Outer + "." + n.Inputs
	}

	o := Offsets{Inputs: inputs.Offset}
	floats := []struct {
		name string
		dst  *uintptr
	}{
		{n.Throttle, &o.Throttle},
		{n.Brake, &o.Brake},
		{n.Steering, &o.Steering},
	}
	rel := make([]uintptr, 0, len(floats))
	for _, f := range floats {
		p, err := r.Find(innerName, inner, f.name)
		if err != nil {
			return Offsets{}, err
		}
		if p.Field.Kind != layout.KindF32 || r.SizeOf(p.Field) != 4 {
			return Offsets{}, unresolved("%s.%s is %s of %d bytes, not a four-byte f32", innerName, f.name, p.Field.Kind, r.SizeOf(p.Field))
		}
		*f.dst = inputs.Offset + p.Offset
		rel = append(rel, p.Offset)
	}
	slices.Sort(rel)
	for i := 1; i < len(rel); i++ {
		if rel[i]-rel[i-1] != 4 {
			return Offsets{}, unresolved("%s inputs are not densely packed: %v", innerName, rel)
		}
	}

	if n.Mobile != "" {
		p, err := r.Find(n.Outer, outer, n.Mobile)
		switch {
		case err == nil && r.SizeOf(p.Field) == 1 && p.Field.Kind.Primitive():
			o.Mobile = p.Offset
			o.HasMobile = true
		case err == nil:
			return Offsets{}, unresolved("%s.%s is %s, not a one-byte flag", n.Outer, n.Mobile, p.Field.Kind)
		}
	}

	whole := r.Place(outer)
	o.BlockSize = whole.Size
	o.BlockAlign = whole.Align
	return o, nil
}
