//go:build opencl
// +build opencl

package device

/*
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// vramfsEventDone is invoked by the OpenCL runtime on a driver thread once
// the event's transfer has completed. The handle wraps the Go cleanup
// closure registered through Event.OnComplete; it is consumed exactly once.
//
//export vramfsEventDone
func vramfsEventDone(ev C.cl_event, status C.cl_int, userData unsafe.Pointer) {
	h := cgo.Handle(uintptr(userData))
	fn := h.Value().(func())
	h.Delete()
	fn()
}
