// Package layout computes byte offsets of fields in sequentially laid out
// foreign value types, given only their field descriptors.
package layout

// DefaultPointerSize is the width of a platform pointer on 64-bit targets.
const DefaultPointerSize uintptr = 8

// Field describes one member of a foreign aggregate.
type Field struct {
	Name string
	Kind Kind
	// Elem is the payload of an optional wrapper.
	Elem *Field
	// Members are the fields of a nested aggregate, in declaration order.
	Members []Field
	// TypeName is the foreign type this field was derived from, if known.
	TypeName string
	// Size and Align replace the values derived from Kind when non-zero.
	Size  uintptr
	Align uintptr
}

// Placement is a field together with its resolved position.
type Placement struct {
	Field  Field
	Offset uintptr
	Size   uintptr
	Align  uintptr
}

// Layout is the result of placing a member sequence.
type Layout struct {
	Fields []Placement
	Size   uintptr
	Align  uintptr
}

// Offset returns the offset of the first member called name.
func (l Layout) Offset(name string) (uintptr, bool) {
	for _, p := range l.Fields {
		if p.Field.Name == name {
			return p.Offset, true
		}
	}
	return 0, false
}

// Resolver applies natural-alignment rules for a given pointer width.
type Resolver struct {
	PointerSize uintptr
}

// NewResolver returns a resolver for the given pointer width, or the 64-bit
// default when pointerSize is zero.
func NewResolver(pointerSize uintptr) Resolver {
	if pointerSize == 0 {
		pointerSize = DefaultPointerSize
	}
	return Resolver{PointerSize: pointerSize}
}

// AlignTo rounds offset up to the next multiple of align. align must be a power of two.
func AlignTo(offset, align uintptr) uintptr {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func (r Resolver) pointerSize() uintptr {
	if r.PointerSize == 0 {
		return DefaultPointerSize
	}
	return r.PointerSize
}

// AlignOf returns the alignment requirement of f.
func (r Resolver) AlignOf(f Field) uintptr {
	if f.Align != 0 {
		return f.Align
	}
	switch f.Kind {
	case KindBool, KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32, KindEnum, KindVec3:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	case KindVec4:
		return 16
	case KindOptional:
		if f.Elem == nil {
			return 1
		}
		return max(1, r.AlignOf(*f.Elem))
	case KindAggregate:
		align := uintptr(1)
		for _, m := range f.Members {
			align = max(align, r.AlignOf(m))
		}
		return align
	default:
		// pointers and anything the metadata could only describe as a reference
		return r.pointerSize()
	}
}

// SizeOf returns the number of bytes f occupies, including internal padding.
func (r Resolver) SizeOf(f Field) uintptr {
	if f.Size != 0 {
		return f.Size
	}
	switch f.Kind {
	case KindBool, KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32, KindEnum:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	case KindVec3:
		return 12
	case KindVec4:
		return 16
	case KindOptional:
		if f.Elem == nil {
			return 1
		}
		return AlignTo(1, r.AlignOf(*f.Elem)) + r.SizeOf(*f.Elem)
	case KindAggregate:
		return AlignTo(r.Place(f.Members).Size, r.AlignOf(f))
	default:
		return r.pointerSize()
	}
}

// Place lays members out in order with a running cursor. Each member is padded
// up to its own alignment; the total is rounded up to the largest alignment.
func (r Resolver) Place(members []Field) Layout {
	l := Layout{
		Fields: make([]Placement, 0, len(members)),
		Align:  1,
	}
	var cursor uintptr
	for _, m := range members {
		align := r.AlignOf(m)
		size := r.SizeOf(m)
		cursor = AlignTo(cursor, align)
		l.Fields = append(l.Fields, Placement{Field: m, Offset: cursor, Size: size, Align: align})
		cursor += size
		l.Align = max(l.Align, align)
	}
	l.Size = AlignTo(cursor, l.Align)
	return l
}

// Find walks members with a running cursor and stops at the first member
// called name. Members after it are never inspected.
func (r Resolver) Find(aggregate string, members []Field, name string) (Placement, error) {
	var cursor uintptr
	for _, m := range members {
		align := r.AlignOf(m)
		cursor = AlignTo(cursor, align)
		if m.Name == name {
			return Placement{Field: m, Offset: cursor, Size: r.SizeOf(m), Align: align}, nil
		}
		cursor += r.SizeOf(m)
	}
	return Placement{}, &UnresolvedError{Aggregate: aggregate, Field: name}
}
