package native

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// Buffer is a Go-owned, aligned block used where a foreign allocation has to
// be simulated. It is bounds checked and stops serving accesses once released.
type Buffer struct {
	backing  []byte
	data     []byte
	released bool
}

// NewBuffer allocates size zeroed bytes whose first byte is aligned to align.
func NewBuffer(size, align uintptr) *Buffer {
	if align == 0 {
		align = 1
	}
	backing := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&backing[0]))
	pad := (addr+align-1)&^(align-1) - addr
	return &Buffer{
		backing: backing,
		data:    backing[pad : pad+size : pad+size],
	}
}

// Len returns the block size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes exposes the block contents. The slice aliases the block.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Pointer returns the address of the first byte, or nil once released.
func (b *Buffer) Pointer() unsafe.Pointer {
	if b.released || len(b.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.data[0])
}

// Raw returns an unchecked view of the same memory, as a host would hand it over.
func (b *Buffer) Raw() Raw {
	return NewRaw(b.Pointer())
}

// Release marks the block as freed by its owner.
func (b *Buffer) Release() {
	b.released = true
}

// Live reports whether the block has not been released.
func (b *Buffer) Live() bool {
	return !b.released
}

func (b *Buffer) check(op string, offset, width uintptr) error {
	if b.released {
		return ErrNotLive
	}
	if offset+width > uintptr(len(b.data)) || offset+width < offset {
		return outOfBounds(op, offset, width, uintptr(len(b.data)))
	}
	return nil
}

func (b *Buffer) ReadF32(offset uintptr) (float32, error) {
	if err := b.check("read f32", offset, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(b.data[offset:])), nil
}

func (b *Buffer) WriteF32(offset uintptr, v float32) error {
	if err := b.check("write f32", offset, 4); err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(b.data[offset:], math.Float32bits(v))
	return nil
}

func (b *Buffer) ReadU8(offset uintptr) (uint8, error) {
	if err := b.check("read u8", offset, 1); err != nil {
		return 0, err
	}
	return b.data[offset], nil
}

func (b *Buffer) WriteU8(offset uintptr, v uint8) error {
	if err := b.check("write u8", offset, 1); err != nil {
		return err
	}
	b.data[offset] = v
	return nil
}

// HeapAllocator allocates Buffers on the Go heap.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(size, align uintptr) (Block, error) {
	if align&(align-1) != 0 {
		return nil, fmt.Errorf("alignment %d is not a power of two", align)
	}
	return NewBuffer(size, align), nil
}

func (HeapAllocator) Free(b Block) error {
	buf, ok := b.(*Buffer)
	if !ok {
		return fmt.Errorf("block %T was not allocated on the heap", b)
	}
	buf.Release()
	return nil
}
