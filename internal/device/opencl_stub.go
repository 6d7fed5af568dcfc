//go:build !opencl
// +build !opencl

package device

import "go.uber.org/zap"

// OpenCLDevice is a stub type when the binary is built without OpenCL.
type OpenCLDevice struct{}

// NewOpenCLDevice always reports no device without the opencl build tag.
func NewOpenCLDevice(log *zap.Logger) (*OpenCLDevice, error) {
	return nil, ErrNoDevice
}

func (d *OpenCLDevice) Info() Info { return Info{Name: "OpenCL not available"} }

func (d *OpenCLDevice) CreateBuffer(size int, access Access) (Buffer, error) {
	panic("opencl backend not available")
}

func (d *OpenCLDevice) CreateBufferFrom(data []byte, access Access) (Buffer, error) {
	panic("opencl backend not available")
}

func (d *OpenCLDevice) FillSupported() bool { return false }

func (d *OpenCLDevice) Fill(buf Buffer, offset, size int) error {
	panic("opencl backend not available")
}

func (d *OpenCLDevice) Copy(src, dst Buffer, srcOff, dstOff, size int) error {
	panic("opencl backend not available")
}

func (d *OpenCLDevice) Read(buf Buffer, offset int, dst []byte) error {
	panic("opencl backend not available")
}

func (d *OpenCLDevice) Write(buf Buffer, offset int, src []byte, blocking bool) (Event, error) {
	panic("opencl backend not available")
}

func (d *OpenCLDevice) Finish() error { return nil }

func (d *OpenCLDevice) Close() error { return nil }
