// Package native reads and writes primitive values inside memory blocks that
// belong to a foreign runtime. Offsets come from the offsets package; nothing
// here knows what the bytes mean.
package native

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLive is returned when the block has been released by its owner.
	ErrNotLive = errors.New("native block not live")
	// ErrOutOfBounds is returned by bounds-checked blocks for accesses past the end.
	ErrOutOfBounds = errors.New("native access out of bounds")
)

// Block is a region of foreign memory addressed by byte offset from its base.
type Block interface {
	ReadF32(offset uintptr) (float32, error)
	WriteF32(offset uintptr, v float32) error
	ReadU8(offset uintptr) (uint8, error)
	WriteU8(offset uintptr, v uint8) error
}

// Allocator hands out blocks that stand in for foreign allocations.
type Allocator interface {
	Alloc(size, align uintptr) (Block, error)
	Free(b Block) error
}

// ReadBool reads a one-byte boolean.
func ReadBool(b Block, offset uintptr) (bool, error) {
	v, err := b.ReadU8(offset)
	return v != 0, err
}

// WriteBool writes a one-byte boolean as 0 or 1.
func WriteBool(b Block, offset uintptr, v bool) error {
	var u uint8
	if v {
		u = 1
	}
	return b.WriteU8(offset, u)
}

func outOfBounds(op string, offset, width, size uintptr) error {
	return fmt.Errorf("%w: %s offset=%d width=%d size=%d", ErrOutOfBounds, op, offset, width, size)
}
