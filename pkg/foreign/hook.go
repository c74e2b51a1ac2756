package foreign

import "sync"

// HookPos names a point in the foreign frame where hooks are invoked.
type HookPos struct {
	Name string
}

// HookPosJobFieldsUpdated fires after a vehicle has copied its managed state
// into its job block and before the job that consumes the block is scheduled.
// Item is the vehicle.
var HookPosJobFieldsUpdated = &HookPos{Name: "JobFieldsUpdated"}

// HookPosUnitDisabled fires when a unit is destroyed or disabled. Item is the unit.
var HookPosUnitDisabled = &HookPos{Name: "UnitDisabled"}

// HookCtx describes the site a hook was triggered from.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   any
}

// Hook is invoked by a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to Hook.
type HookFunc func(ctx HookCtx)

func (f HookFunc) Func(ctx HookCtx) { f(ctx) }

// Hookable accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
}

// HookableBase keeps a hook list for types implementing Hookable. Hooks
// may be added while another goroutine invokes them.
type HookableBase struct {
	mu    sync.RWMutex
	hooks []Hook
}

// NewHookableBase creates an empty HookableBase.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mu.Lock()
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()
}

// NumHooks returns the number of registered hooks.
func (h *HookableBase) NumHooks() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks)
}

// InvokeHook triggers the hooks registered so far in registration order.
// The lock is not held while they run, so a hook may register another.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	h.mu.RLock()
	hooks := h.hooks[:len(h.hooks):len(h.hooks)]
	h.mu.RUnlock()
	for _, hook := range hooks {
		hook.Func(ctx)
	}
}
