package hostentity

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
)

// Bridge forwards host unit and frame calls to a Registry and the
// possession manager.
type Bridge struct {
	registry *Registry
	manager  *possession.Manager
	logger   *slog.Logger
}

// NewBridge installs manager as a disable hook on registry.
func NewBridge(registry *Registry, manager *possession.Manager, logger *slog.Logger) (*Bridge, error) {
	if registry == nil || manager == nil {
		return nil, fmt.Errorf("registry and manager are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry.AcceptHook(manager)
	return &Bridge{registry: registry, manager: manager, logger: logger}, nil
}

func (b *Bridge) RegisterGroundVehicle(handle, name string, state, block unsafe.Pointer) error {
	_, err := b.registry.RegisterGroundVehicle(handle, name, state, block)
	return err
}

func (b *Bridge) RegisterShip(handle, name string, state unsafe.Pointer) error {
	_, err := b.registry.RegisterShip(handle, name, state)
	return err
}

func (b *Bridge) Unregister(handle string) error {
	return b.registry.Unregister(handle)
}

func (b *Bridge) JobFieldsUpdated(handle string, block unsafe.Pointer) error {
	return b.registry.JobFieldsUpdated(handle, block)
}

func (b *Bridge) UnitDisabled(handle string) error {
	return b.registry.UnitDisabled(handle)
}

// Update runs the per-frame liveness check. Losing the possessed unit is
// logged, not reported as a failed call.
func (b *Bridge) Update() error {
	err := b.manager.Tick()
	if errors.Is(err, possession.ErrEntityInvalidated) {
		b.logger.Warn("Possessed unit lost", "error", err)
		return nil
	}
	return err
}

func (b *Bridge) FixedUpdate() error {
	b.manager.FixedTick()
	return nil
}
