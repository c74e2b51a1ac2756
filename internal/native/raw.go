package native

import "unsafe"

// ReadF32 reads a float at base+offset. The caller guarantees base is live.
func ReadF32(base unsafe.Pointer, offset uintptr) float32 {
	return *(*float32)(unsafe.Add(base, offset))
}

// WriteF32 writes a float at base+offset. The caller guarantees base is live.
func WriteF32(base unsafe.Pointer, offset uintptr, v float32) {
	*(*float32)(unsafe.Add(base, offset)) = v
}

// ReadU8 reads a byte at base+offset. The caller guarantees base is live.
func ReadU8(base unsafe.Pointer, offset uintptr) uint8 {
	return *(*uint8)(unsafe.Add(base, offset))
}

// WriteU8 writes a byte at base+offset. The caller guarantees base is live.
func WriteU8(base unsafe.Pointer, offset uintptr, v uint8) {
	*(*uint8)(unsafe.Add(base, offset)) = v
}

// Raw is a Block over an address handed to us by the host. Accesses are not
// bounds checked; only a nil base is rejected.
type Raw struct {
	base unsafe.Pointer
}

// NewRaw wraps a host address.
func NewRaw(base unsafe.Pointer) Raw {
	return Raw{base: base}
}

// Base returns the wrapped address.
func (r Raw) Base() unsafe.Pointer {
	return r.base
}

func (r Raw) ReadF32(offset uintptr) (float32, error) {
	if r.base == nil {
		return 0, ErrNotLive
	}
	return ReadF32(r.base, offset), nil
}

func (r Raw) WriteF32(offset uintptr, v float32) error {
	if r.base == nil {
		return ErrNotLive
	}
	WriteF32(r.base, offset, v)
	return nil
}

func (r Raw) ReadU8(offset uintptr) (uint8, error) {
	if r.base == nil {
		return 0, ErrNotLive
	}
	return ReadU8(r.base, offset), nil
}

func (r Raw) WriteU8(offset uintptr, v uint8) error {
	if r.base == nil {
		return ErrNotLive
	}
	WriteU8(r.base, offset, v)
	return nil
}
