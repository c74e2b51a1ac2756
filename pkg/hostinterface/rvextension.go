package hostinterface

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C"
import (
	"unsafe"
)

// called by the host to get the version of the extension
//
//export VCExtensionVersion
func VCExtensionVersion(output *C.char, outputsize C.size_t) {
	replyToSyncCall(Config.version, output, outputsize)
}

// called by the host with a single command string
//
//export VCExtension
func VCExtension(output *C.char, outputsize C.size_t, input *C.char) {
	replyToSyncCall(dispatchCommand(Config.dispatcher, C.GoString(input)), output, outputsize)
}

// called by the host with a command and an argument array
//
//export VCExtensionArgs
func VCExtensionArgs(output *C.char, outputsize C.size_t, input *C.char, argv **C.char, argc C.int) {
	command := C.GoString(input)
	args := parseArgsFromC(argv, argc)
	replyToSyncCall(dispatchArgs(Config.dispatcher, command, args), output, outputsize)
}

//export VCRegisterGroundVehicle
func VCRegisterGroundVehicle(handle, name *C.char, state, block unsafe.Pointer) C.int {
	h, n := C.GoString(handle), C.GoString(name)
	return C.int(callHost("VCRegisterGroundVehicle", func(host Host) error {
		return host.RegisterGroundVehicle(h, n, state, block)
	}))
}

//export VCRegisterShip
func VCRegisterShip(handle, name *C.char, state unsafe.Pointer) C.int {
	h, n := C.GoString(handle), C.GoString(name)
	return C.int(callHost("VCRegisterShip", func(host Host) error {
		return host.RegisterShip(h, n, state)
	}))
}

//export VCUnregister
func VCUnregister(handle *C.char) C.int {
	h := C.GoString(handle)
	return C.int(callHost("VCUnregister", func(host Host) error {
		return host.Unregister(h)
	}))
}

// called between the host's job field update and the job run
//
//export VCJobFieldsUpdated
func VCJobFieldsUpdated(handle *C.char, block unsafe.Pointer) C.int {
	h := C.GoString(handle)
	return C.int(callHost("VCJobFieldsUpdated", func(host Host) error {
		return host.JobFieldsUpdated(h, block)
	}))
}

//export VCUnitDisabled
func VCUnitDisabled(handle *C.char) C.int {
	h := C.GoString(handle)
	return C.int(callHost("VCUnitDisabled", func(host Host) error {
		return host.UnitDisabled(h)
	}))
}

//export VCUpdate
func VCUpdate() C.int {
	return C.int(callHost("VCUpdate", Host.Update))
}

//export VCFixedUpdate
func VCFixedUpdate() C.int {
	return C.int(callHost("VCFixedUpdate", Host.FixedUpdate))
}

// called by the host before the library is unloaded
//
//export VCUnload
func VCUnload() C.int {
	return C.int(runUnload())
}

// parseArgsFromC converts C argv array to Go string slice
func parseArgsFromC(argv **C.char, argc C.int) []string {
	if argc <= 0 || argv == nil {
		return nil
	}
	return toGoStrings(unsafe.Slice(argv, int(argc)))
}

func toGoStrings(ptrs []*C.char) []string {
	data := make([]string, 0, len(ptrs))
	for _, p := range ptrs {
		data = append(data, C.GoString(p))
	}
	return data
}

// replyToSyncCall copies response into the host's output buffer, truncating
// to outputsize including the terminator.
func replyToSyncCall(response string, output *C.char, outputsize C.size_t) {
	if outputsize == 0 {
		return
	}
	result := C.CString(response)
	defer C.free(unsafe.Pointer(result))
	var size = C.strlen(result) + 1
	if size > outputsize {
		size = outputsize
	}
	C.memmove(unsafe.Pointer(output), unsafe.Pointer(result), size)
	*(*C.char)(unsafe.Add(unsafe.Pointer(output), size-1)) = 0
}
