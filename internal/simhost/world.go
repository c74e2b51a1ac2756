// Package simhost is an in-process stand-in for the runtime that owns the
// vehicles. Each frame it copies managed state into native job blocks, fires
// the job hook, then runs the consuming jobs concurrently and waits for them.
package simhost

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

// Options configure a World. Zero values select the embedded shapes, the
// default field names and Go heap blocks.
type Options struct {
	Schema    *layout.Schema
	Resolver  layout.Resolver
	Names     offsets.Names
	Allocator native.Allocator
	Logger    *slog.Logger
}

// World owns every simulated unit. Update must be called from one goroutine.
type World struct {
	*foreign.HookableBase

	alloc  native.Allocator
	lay    jobLayout
	logger *slog.Logger

	mu       sync.Mutex
	vehicles []*GroundVehicle
	ships    []*Ship
	nextID   int
}

// New creates an empty world.
func New(opts Options) (*World, error) {
	if opts.Schema == nil {
		opts.Schema = layout.DefaultSchema()
	}
	if opts.Resolver.PointerSize == 0 {
		opts.Resolver = layout.NewResolver(0)
	}
	if opts.Names == (offsets.Names{}) {
		opts.Names = offsets.DefaultNames()
	}
	if opts.Allocator == nil {
		opts.Allocator = native.HeapAllocator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	lay, err := newJobLayout(opts.Schema, opts.Resolver, opts.Names)
	if err != nil {
		return nil, fmt.Errorf("laying out job block: %w", err)
	}
	return &World{
		HookableBase: foreign.NewHookableBase(),
		alloc:        opts.Allocator,
		lay:          lay,
		logger:       opts.Logger,
	}, nil
}

// UnitSpec describes a unit to spawn.
type UnitSpec struct {
	Name     string
	Faction  string
	Position Vec
	Heading  float64
	// TopSpeed is in metres per second.
	TopSpeed float64
	Driver   Driver
}

func (w *World) newUnit(spec UnitSpec) unit {
	w.nextID++
	return unit{
		id:       fmt.Sprintf("u%d", w.nextID),
		name:     spec.Name,
		faction:  spec.Faction,
		live:     true,
		pos:      spec.Position,
		heading:  spec.Heading,
		topSpeed: spec.TopSpeed,
		driver:   spec.Driver,
	}
}

// AddGroundVehicle spawns an AI-driven ground vehicle. Its job block is
// created on the first Update.
func (w *World) AddGroundVehicle(spec UnitSpec) *GroundVehicle {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := &GroundVehicle{unit: w.newUnit(spec), world: w, mobile: true}
	w.vehicles = append(w.vehicles, v)
	return v
}

// AddShip spawns an AI-driven ship.
func (w *World) AddShip(spec UnitSpec) *Ship {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &Ship{unit: w.newUnit(spec)}
	w.ships = append(w.ships, s)
	return s
}

// Units returns every unit, live or not.
func (w *World) Units() []foreign.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]foreign.Entity, 0, len(w.vehicles)+len(w.ships))
	for _, v := range w.vehicles {
		out = append(out, v)
	}
	for _, s := range w.ships {
		out = append(out, s)
	}
	return out
}

// Unit looks a unit up by id.
func (w *World) Unit(id string) (foreign.Entity, bool) {
	for _, u := range w.Units() {
		if u.ID() == id {
			return u, true
		}
	}
	return nil, false
}

// Update runs one frame.
func (w *World) Update(dt float64) error {
	w.mu.Lock()
	vehicles := append([]*GroundVehicle(nil), w.vehicles...)
	ships := append([]*Ship(nil), w.ships...)
	w.mu.Unlock()

	var errs []error
	scheduled := make([]*GroundVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if !v.Live() {
			continue
		}
		if err := v.updateJobFields(w.alloc, w.lay); err != nil {
			errs = append(errs, fmt.Errorf("%s job fields: %w", v.name, err))
			continue
		}
		w.InvokeHook(foreign.HookCtx{Domain: w, Pos: foreign.HookPosJobFieldsUpdated, Item: v})
		scheduled = append(scheduled, v)
	}

	jobErrs := make([]error, len(scheduled))
	var wg sync.WaitGroup
	for i, v := range scheduled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobErrs[i] = v.runJob(w.lay, dt)
		}()
	}
	wg.Wait()
	for i, err := range jobErrs {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s job: %w", scheduled[i].name, err))
		}
	}

	for _, s := range ships {
		if s.Live() {
			s.update(dt)
		}
	}
	return errors.Join(errs...)
}

// Destroy disables a unit, frees its job block and notifies the
// HookPosUnitDisabled hooks.
func (w *World) Destroy(id string) error {
	e, ok := w.Unit(id)
	if !ok {
		return fmt.Errorf("unknown unit %q", id)
	}

	var freeErr error
	switch u := e.(type) {
	case *GroundVehicle:
		u.mu.Lock()
		u.live = false
		if u.created {
			u.created = false
			freeErr = w.alloc.Free(u.block)
		}
		u.mu.Unlock()
	case *Ship:
		u.mu.Lock()
		u.live = false
		u.mu.Unlock()
	}

	w.logger.Debug("Unit destroyed", "unit", e.Name())
	w.InvokeHook(foreign.HookCtx{Domain: w, Pos: foreign.HookPosUnitDisabled, Item: e})
	return freeErr
}

// NearestFriendly returns the closest live unit of faction within maxDistance
// of from, or nil.
func (w *World) NearestFriendly(from Vec, faction string, maxDistance float64) foreign.Entity {
	var best foreign.Entity
	bestDist := math.Inf(1)

	consider := func(e foreign.Entity, u *unit) {
		u.mu.Lock()
		live, pos, f := u.live, u.pos, u.faction
		u.mu.Unlock()
		if !live || f != faction {
			return
		}
		if d := from.Dist(pos); d <= maxDistance && d < bestDist {
			best, bestDist = e, d
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range w.vehicles {
		consider(v, &v.unit)
	}
	for _, s := range w.ships {
		consider(s, &s.unit)
	}
	return best
}

// Close frees every remaining job block.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, v := range w.vehicles {
		v.mu.Lock()
		if v.created {
			v.created = false
			errs = append(errs, w.alloc.Free(v.block))
		}
		v.mu.Unlock()
	}
	return errors.Join(errs...)
}
