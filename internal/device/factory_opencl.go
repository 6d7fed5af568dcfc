//go:build opencl
// +build opencl

package device

import "go.uber.org/zap"

// New selects the best available device backend.
// With OpenCL compiled in, a GPU is preferred and the host backend is the
// fallback when no platform exposes one.
func New(log *zap.Logger) Device {
	dev, err := NewOpenCLDevice(log)
	if err == nil {
		return dev
	}
	log.Warn("no OpenCL GPU available, using host backend", zap.Error(err))
	return NewHostDevice(log)
}
