package hostinterface

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/dispatcher"
)

// Status codes returned by the unit and frame exports.
const (
	StatusOK     = 0
	StatusError  = 1
	StatusNoHost = 2
	StatusPanic  = 3
)

var errNoHandler = errors.New("no handler registered")

// dispatchCommand runs a plain command. The part before the first "|" names
// the handler when the full string does not; the full string is passed as
// the only argument.
func dispatchCommand(d *dispatcher.Dispatcher, command string) string {
	if command == ":TIMESTAMP:" {
		return formatDispatchResponse(command, getTimestamp(), nil)
	}
	if d == nil {
		return formatDispatchResponse(command, nil, errNoHandler)
	}

	name := command
	if !d.HasHandler(command) {
		name = strings.Split(command, "|")[0]
	}
	if !d.HasHandler(name) {
		return formatDispatchResponse(command, nil, errNoHandler)
	}

	var args []string
	if name != command {
		args = strings.Split(command, "|")[1:]
	}
	result, err := d.Dispatch(dispatcher.Event{
		Command:   name,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(name, result, err)
}

// dispatchArgs runs a command called with an argument array.
func dispatchArgs(d *dispatcher.Dispatcher, command string, args []string) string {
	if d == nil || !d.HasHandler(command) {
		return formatDispatchResponse(command, nil, errNoHandler)
	}
	result, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(command, result, err)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// formatDispatchResponse renders ["ok", result] or ["error", message].
// Strings are quoted with embedded quotes doubled; everything else is JSON.
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		return fmt.Sprintf(`["error", %s]`, quote(err.Error()))
	}
	switch v := result.(type) {
	case nil:
		return `["ok"]`
	case string:
		return fmt.Sprintf(`["ok", %s]`, quote(v))
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`["error", %s]`, quote(fmt.Sprintf("%s: cannot encode result: %v", command, err)))
	}
	return fmt.Sprintf(`["ok", %s]`, b)
}

// callHost runs fn against the configured host and converts the outcome
// into a status code. Panics never cross the C boundary.
func callHost(call string, fn func(Host) error) (status int) {
	h := Config.host
	if h == nil {
		return StatusNoHost
	}
	defer func() {
		if r := recover(); r != nil {
			reportError(call, fmt.Errorf("panic: %v", r))
			status = StatusPanic
		}
	}()
	if err := fn(h); err != nil {
		reportError(call, err)
		return StatusError
	}
	return StatusOK
}

// runUnload runs the unload function the first time it is called.
func runUnload() (status int) {
	fn, once := Config.unload, Config.unloadOnce
	if fn == nil || once == nil {
		return StatusNoHost
	}
	defer func() {
		if r := recover(); r != nil {
			reportError("VCUnload", fmt.Errorf("panic: %v", r))
			status = StatusPanic
		}
	}()
	once.Do(fn)
	return StatusOK
}

func reportError(call string, err error) {
	if Config.errChan == nil {
		return
	}
	select {
	case Config.errChan <- []string{call, err.Error()}:
	default:
	}
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
