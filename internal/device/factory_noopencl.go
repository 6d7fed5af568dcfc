//go:build !opencl
// +build !opencl

package device

import "go.uber.org/zap"

// New selects the best available device backend.
// Without OpenCL support this is always the host backend.
func New(log *zap.Logger) Device {
	log.Info("using host backend (compiled without OpenCL support)")
	return NewHostDevice(log)
}
