// Package hostinterface exposes the extension to the host through a C ABI:
// commands, unit registration, the job scheduling callback and frame ticks.
package hostinterface

import (
	"sync"
	"unsafe"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/dispatcher"
)

// Host receives the unit and frame calls made by the host.
type Host interface {
	RegisterGroundVehicle(handle, name string, state, block unsafe.Pointer) error
	RegisterShip(handle, name string, state unsafe.Pointer) error
	Unregister(handle string) error
	// JobFieldsUpdated runs after the host copied a unit's state into its
	// job block and before the job consumes it.
	JobFieldsUpdated(handle string, block unsafe.Pointer) error
	UnitDisabled(handle string) error
	Update() error
	FixedUpdate() error
}

type configStruct struct {
	// version is returned when the extension is first called by the host
	version string

	// errChan receives [call, error] for failed host calls when set
	errChan chan []string

	dispatcher *dispatcher.Dispatcher
	host       Host

	unload     func()
	unloadOnce *sync.Once
}

// Config defines how calls to this extension will be handled.
var Config = configStruct{version: "No version set"}

// SetVersion sets the version string returned by VCExtensionVersion.
func SetVersion(version string) {
	Config.version = version
}

// RegisterErrorChan sets the channel for error reporting. Sends never block.
func RegisterErrorChan(channel chan []string) {
	Config.errChan = channel
}

// SetDispatcher sets the event dispatcher for handling commands.
func SetDispatcher(d *dispatcher.Dispatcher) {
	Config.dispatcher = d
}

// GetDispatcher returns the configured dispatcher, or nil if not set.
func GetDispatcher() *dispatcher.Dispatcher {
	return Config.dispatcher
}

// SetHost sets the receiver of unit and frame calls.
func SetHost(h Host) {
	Config.host = h
}

// SetUnload sets the function VCUnload runs. It runs at most once per call
// to SetUnload.
func SetUnload(fn func()) {
	Config.unload = fn
	Config.unloadOnce = new(sync.Once)
}
