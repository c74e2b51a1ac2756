// Package wasmmem provides foreign blocks carved out of a WebAssembly linear
// memory. The memory is owned by a wazero runtime, so every access goes
// through its bounds-checked API.
package wasmmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
)

const pageSize = 65536

// memoryModule is a module with one exported page of memory and nothing else.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1 page
	0x07, 0x0a, 0x01, // export section: 1 export
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // "memory" -> memory 0
}

// Arena is a bump allocator over a wazero linear memory.
type Arena struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	mem     api.Memory
	next    uint32
}

// New instantiates the backing module.
func New(ctx context.Context) (*Arena, error) {
	r := wazero.NewRuntime(ctx)
	mod, err := r.Instantiate(ctx, memoryModule)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("memory module has no exported memory")
	}
	// offset 0 stays unused so a zero address never looks allocated
	return &Arena{runtime: r, mem: mem, next: 16}, nil
}

// Alloc reserves size bytes at the given alignment, growing memory as needed.
func (a *Arena) Alloc(size, align uintptr) (native.Block, error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return nil, fmt.Errorf("alignment %d is not a power of two", align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := (uint64(a.next) + uint64(align) - 1) &^ (uint64(align) - 1)
	end := start + uint64(size)
	if end > 1<<32 {
		return nil, fmt.Errorf("arena exhausted: need %d bytes", end)
	}
	if have := uint64(a.mem.Size()); end > have {
		pages := uint32((end - have + pageSize - 1) / pageSize)
		if _, ok := a.mem.Grow(pages); !ok {
			return nil, fmt.Errorf("grow memory by %d pages failed", pages)
		}
	}
	a.next = uint32(end)

	return &Block{mem: a.mem, base: uint32(start), size: uint32(size)}, nil
}

// Free marks b as released. Its bytes are not reused.
func (a *Arena) Free(b native.Block) error {
	blk, ok := b.(*Block)
	if !ok || blk.mem != a.mem {
		return fmt.Errorf("block %T was not allocated by this arena", b)
	}
	blk.mu.Lock()
	blk.freed = true
	blk.mu.Unlock()
	return nil
}

// Size returns the current linear memory size in bytes.
func (a *Arena) Size() uint32 {
	return a.mem.Size()
}

// Close tears down the runtime. Blocks must not be used afterwards.
func (a *Arena) Close(ctx context.Context) error {
	return a.runtime.Close(ctx)
}

// Block is a window of the arena's linear memory.
type Block struct {
	mu    sync.RWMutex
	mem   api.Memory
	base  uint32
	size  uint32
	freed bool
}

// Address returns the block's offset in linear memory.
func (b *Block) Address() uint32 {
	return b.base
}

// Len returns the block size in bytes.
func (b *Block) Len() uint32 {
	return b.size
}

func (b *Block) check(op string, offset, width uintptr) (uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.freed {
		return 0, native.ErrNotLive
	}
	if offset+width > uintptr(b.size) || offset+width < offset {
		return 0, fmt.Errorf("%w: %s offset=%d size=%d", native.ErrOutOfBounds, op, offset, b.size)
	}
	return b.base + uint32(offset), nil
}

func (b *Block) ReadF32(offset uintptr) (float32, error) {
	addr, err := b.check("read f32", offset, 4)
	if err != nil {
		return 0, err
	}
	v, ok := b.mem.ReadFloat32Le(addr)
	if !ok {
		return 0, fmt.Errorf("%w: read f32 at 0x%x", native.ErrOutOfBounds, addr)
	}
	return v, nil
}

func (b *Block) WriteF32(offset uintptr, v float32) error {
	addr, err := b.check("write f32", offset, 4)
	if err != nil {
		return err
	}
	if !b.mem.WriteFloat32Le(addr, v) {
		return fmt.Errorf("%w: write f32 at 0x%x", native.ErrOutOfBounds, addr)
	}
	return nil
}

func (b *Block) ReadU8(offset uintptr) (uint8, error) {
	addr, err := b.check("read u8", offset, 1)
	if err != nil {
		return 0, err
	}
	v, ok := b.mem.ReadByte(addr)
	if !ok {
		return 0, fmt.Errorf("%w: read u8 at 0x%x", native.ErrOutOfBounds, addr)
	}
	return v, nil
}

func (b *Block) WriteU8(offset uintptr, v uint8) error {
	addr, err := b.check("write u8", offset, 1)
	if err != nil {
		return err
	}
	if !b.mem.WriteByte(addr, v) {
		return fmt.Errorf("%w: write u8 at 0x%x", native.ErrOutOfBounds, addr)
	}
	return nil
}
