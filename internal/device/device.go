// Package device abstracts the compute device and its command queue used to
// back the VRAM block pool. All operations on a Device go through a single
// in-order queue: enqueued clears, reads and writes complete in submission
// order, so a read issued after a write on the same device observes that
// write without an explicit wait.
package device

import "errors"

var (
	ErrNoDevice        = errors.New("no capable compute device found")
	ErrDeviceClosed    = errors.New("device closed")
	ErrBufferFreed     = errors.New("buffer already released")
	ErrOutOfRange      = errors.New("offset and length exceed buffer size")
	ErrFillUnsupported = errors.New("device does not support native fill")
)

// Access describes how a buffer may be used by the device.
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
)

// Info describes the selected device.
type Info struct {
	Name        string
	Vendor      string
	Version     string
	TotalMemory int64
	FillBuffer  bool // native fill-with-constant primitive available
}

// Buffer is a region of device memory. A Buffer is exclusively owned by
// whoever holds the reference; it is never shared between two holders.
type Buffer interface {
	// Size returns the buffer length in bytes.
	Size() int

	// Release frees the device allocation. Pending queue operations that
	// reference the buffer must be drained first.
	Release()
}

// Event is the completion handle of an asynchronous device operation.
type Event interface {
	// Wait blocks until the operation has completed on the device.
	// Waiting on an already-completed event returns immediately.
	Wait() error

	// OnComplete registers fn to run exactly once, after the operation is
	// durably finished from the device's perspective. fn executes on a
	// driver-managed goroutine, never on the caller's.
	OnComplete(fn func())
}

// Device is a compute device with one in-order command queue.
//
// Implementations are not internally synchronized against concurrent
// enqueue from multiple goroutines beyond what the queue itself provides;
// the pool layer assumes single-writer access.
type Device interface {
	// Info returns static metadata about the device.
	Info() Info

	// CreateBuffer allocates a device buffer of size bytes.
	CreateBuffer(size int, access Access) (Buffer, error)

	// CreateBufferFrom allocates a device buffer initialized with a copy
	// of data.
	CreateBufferFrom(data []byte, access Access) (Buffer, error)

	// FillSupported reports whether Fill is usable on this device.
	FillSupported() bool

	// Fill enqueues a zero-fill of size bytes at offset. Returns
	// ErrFillUnsupported when the device lacks the primitive.
	Fill(buf Buffer, offset, size int) error

	// Copy enqueues a device-to-device copy of size bytes.
	Copy(src, dst Buffer, srcOff, dstOff, size int) error

	// Read performs a blocking device-to-host read into dst.
	Read(buf Buffer, offset int, dst []byte) error

	// Write performs a host-to-device write of src at offset. When
	// blocking is false the call returns once the operation is enqueued;
	// src must then remain valid until the returned Event completes.
	Write(buf Buffer, offset int, src []byte, blocking bool) (Event, error)

	// Finish drains the queue, blocking until all enqueued operations
	// have completed.
	Finish() error

	// Close tears down the queue and device context.
	Close() error
}
