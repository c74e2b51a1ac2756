package hostentity

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

var (
	ErrUnknownUnit = errors.New("unknown unit")
	ErrDuplicate   = errors.New("unit already registered")
	ErrNilState    = errors.New("nil state address")
)

// Registry holds the units the host registered, keyed by handle. It is the
// Hookable the override coordinator attaches to.
type Registry struct {
	*foreign.HookableBase

	lay Layouts

	mu    sync.RWMutex
	units map[string]foreign.Entity
}

func NewRegistry(lay Layouts) *Registry {
	return &Registry{
		HookableBase: foreign.NewHookableBase(),
		lay:          lay,
		units:        make(map[string]foreign.Entity),
	}
}

// RegisterGroundVehicle adds a vehicle. block may be nil until the host has
// created the job data.
func (r *Registry) RegisterGroundVehicle(handle, name string, state, block unsafe.Pointer) (*GroundVehicle, error) {
	if state == nil {
		return nil, ErrNilState
	}
	v := &GroundVehicle{id: handle, name: name, lay: r.lay.vehicle, state: native.NewRaw(state)}
	if block != nil {
		v.block = native.NewRaw(block)
	}
	if err := r.add(v); err != nil {
		return nil, err
	}
	return v, nil
}

// RegisterShip adds a ship.
func (r *Registry) RegisterShip(handle, name string, state unsafe.Pointer) (*Ship, error) {
	if state == nil {
		return nil, ErrNilState
	}
	s := &Ship{id: handle, name: name, lay: r.lay.ship, state: native.NewRaw(state)}
	if err := r.add(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) add(e foreign.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[e.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID())
	}
	r.units[e.ID()] = e
	return nil
}

// Get returns the unit registered under handle.
func (r *Registry) Get(handle string) (foreign.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.units[handle]
	return e, ok
}

// Handles lists registered handles in order.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.units))
	for h := range r.units {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// JobFieldsUpdated is the host's scheduling callback: the vehicle has copied
// its state into the block at address block and its job is about to run.
func (r *Registry) JobFieldsUpdated(handle string, block unsafe.Pointer) error {
	e, ok := r.Get(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, handle)
	}
	v, ok := e.(*GroundVehicle)
	if !ok {
		return fmt.Errorf("%s is a %s, not a ground vehicle", handle, e.Kind())
	}
	if block != nil {
		v.setBlock(native.NewRaw(block))
	}
	r.InvokeHook(foreign.HookCtx{Domain: r, Pos: foreign.HookPosJobFieldsUpdated, Item: v})
	return nil
}

// UnitDisabled notifies the disable hooks.
func (r *Registry) UnitDisabled(handle string) error {
	e, ok := r.Get(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, handle)
	}
	r.InvokeHook(foreign.HookCtx{Domain: r, Pos: foreign.HookPosUnitDisabled, Item: e})
	return nil
}

// Unregister removes a unit after notifying the disable hooks, since its
// memory is about to go away.
func (r *Registry) Unregister(handle string) error {
	if err := r.UnitDisabled(handle); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.units, handle)
	r.mu.Unlock()
	return nil
}
