package foreign

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookableBaseInvokesInOrder(t *testing.T) {
	h := NewHookableBase()
	var order []string

	h.AcceptHook(HookFunc(func(ctx HookCtx) { order = append(order, "first:"+ctx.Pos.Name) }))
	h.AcceptHook(HookFunc(func(ctx HookCtx) { order = append(order, "second:"+ctx.Item.(string)) }))

	h.InvokeHook(HookCtx{Domain: h, Pos: HookPosJobFieldsUpdated, Item: "tank"})

	assert.Equal(t, []string{"first:JobFieldsUpdated", "second:tank"}, order)
}

func TestHookableBaseConcurrentAcceptAndInvoke(t *testing.T) {
	h := NewHookableBase()
	var mu sync.Mutex
	calls := 0
	count := HookFunc(func(HookCtx) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.AcceptHook(count)
		}()
		go func() {
			defer wg.Done()
			h.InvokeHook(HookCtx{Domain: h, Pos: HookPosUnitDisabled})
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, h.NumHooks())
	mu.Lock()
	before := calls
	mu.Unlock()
	h.InvokeHook(HookCtx{Domain: h, Pos: HookPosUnitDisabled})
	assert.Equal(t, before+8, calls)
}

func TestHookMayRegisterAnotherWhileInvoked(t *testing.T) {
	h := NewHookableBase()
	late := 0
	h.AcceptHook(HookFunc(func(HookCtx) {
		h.AcceptHook(HookFunc(func(HookCtx) { late++ }))
	}))

	h.InvokeHook(HookCtx{Domain: h, Pos: HookPosJobFieldsUpdated})
	assert.Equal(t, 0, late)
	assert.Equal(t, 2, h.NumHooks())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ship", KindShip.String())
	assert.Equal(t, "ground_vehicle", KindGroundVehicle.String())
	assert.Equal(t, "none", Kind(42).String())
}
