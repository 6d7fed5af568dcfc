//go:build opencl
// +build opencl

package device

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#include <stdint.h>

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

extern void vramfsEventDone(cl_event ev, cl_int status, void* user_data);

static cl_int vramfs_set_event_callback(cl_event ev, uintptr_t handle) {
	return clSetEventCallback(ev, CL_COMPLETE, vramfsEventDone, (void*)handle);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"strings"
	"unsafe"

	"go.uber.org/zap"
)

// OpenCLDevice drives a GPU through OpenCL. The command queue is created
// without out-of-order execution, so enqueued operations complete in
// submission order.
type OpenCLDevice struct {
	log      *zap.Logger
	platform C.cl_platform_id
	device   C.cl_device_id
	ctx      C.cl_context
	queue    C.cl_command_queue
	fill     bool
	info     Info
}

// NewOpenCLDevice finds the first platform exposing a GPU-class device and
// binds a context and in-order command queue to it. Returns ErrNoDevice
// when no platform has a GPU.
func NewOpenCLDevice(log *zap.Logger) (*OpenCLDevice, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var count C.cl_uint
	if rc := C.clGetPlatformIDs(0, nil, &count); rc != C.CL_SUCCESS || count == 0 {
		return nil, ErrNoDevice
	}
	platforms := make([]C.cl_platform_id, count)
	if rc := C.clGetPlatformIDs(count, &platforms[0], nil); rc != C.CL_SUCCESS {
		return nil, clError("clGetPlatformIDs", rc)
	}

	for _, platform := range platforms {
		var ndev C.cl_uint
		rc := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 0, nil, &ndev)
		if rc != C.CL_SUCCESS || ndev == 0 {
			continue
		}
		var dev C.cl_device_id
		if rc := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 1, &dev, nil); rc != C.CL_SUCCESS {
			continue
		}

		var errc C.cl_int
		ctx := C.clCreateContext(nil, 1, &dev, nil, nil, &errc)
		if errc != C.CL_SUCCESS {
			return nil, clError("clCreateContext", errc)
		}
		queue := C.clCreateCommandQueue(ctx, dev, 0, &errc)
		if errc != C.CL_SUCCESS {
			C.clReleaseContext(ctx)
			return nil, clError("clCreateCommandQueue", errc)
		}

		version := platformInfo(platform, C.CL_PLATFORM_VERSION)
		d := &OpenCLDevice{
			log:      log,
			platform: platform,
			device:   dev,
			ctx:      ctx,
			queue:    queue,
			fill:     platformAtLeast(version, 1, 2),
			info: Info{
				Name:        deviceInfo(dev, C.CL_DEVICE_NAME),
				Vendor:      deviceInfo(dev, C.CL_DEVICE_VENDOR),
				Version:     version,
				TotalMemory: deviceMemSize(dev),
			},
		}
		d.info.FillBuffer = d.fill

		log.Info("opencl device selected",
			zap.String("device", d.info.Name),
			zap.String("platform_version", version),
			zap.Bool("fill_buffer", d.fill))
		return d, nil
	}

	return nil, ErrNoDevice
}

func (d *OpenCLDevice) Info() Info { return d.info }

func (d *OpenCLDevice) CreateBuffer(size int, access Access) (Buffer, error) {
	if size <= 0 {
		return nil, ErrOutOfRange
	}
	var errc C.cl_int
	mem := C.clCreateBuffer(d.ctx, clAccess(access), C.size_t(size), nil, &errc)
	if errc != C.CL_SUCCESS {
		return nil, clError("clCreateBuffer", errc)
	}
	return &clBuffer{dev: d, mem: mem, size: size}, nil
}

func (d *OpenCLDevice) CreateBufferFrom(data []byte, access Access) (Buffer, error) {
	if len(data) == 0 {
		return nil, ErrOutOfRange
	}
	var errc C.cl_int
	mem := C.clCreateBuffer(d.ctx, clAccess(access)|C.CL_MEM_COPY_HOST_PTR,
		C.size_t(len(data)), unsafe.Pointer(&data[0]), &errc)
	if errc != C.CL_SUCCESS {
		return nil, clError("clCreateBuffer", errc)
	}
	return &clBuffer{dev: d, mem: mem, size: len(data)}, nil
}

func (d *OpenCLDevice) FillSupported() bool { return d.fill }

func (d *OpenCLDevice) Fill(buf Buffer, offset, size int) error {
	if !d.fill {
		return ErrFillUnsupported
	}
	b, err := d.check(buf, offset, size)
	if err != nil {
		return err
	}
	var zero C.cl_uchar
	rc := C.clEnqueueFillBuffer(d.queue, b.mem, unsafe.Pointer(&zero), 1,
		C.size_t(offset), C.size_t(size), 0, nil, nil)
	if rc != C.CL_SUCCESS {
		return clError("clEnqueueFillBuffer", rc)
	}
	return nil
}

func (d *OpenCLDevice) Copy(src, dst Buffer, srcOff, dstOff, size int) error {
	sb, err := d.check(src, srcOff, size)
	if err != nil {
		return err
	}
	db, err := d.check(dst, dstOff, size)
	if err != nil {
		return err
	}
	rc := C.clEnqueueCopyBuffer(d.queue, sb.mem, db.mem,
		C.size_t(srcOff), C.size_t(dstOff), C.size_t(size), 0, nil, nil)
	if rc != C.CL_SUCCESS {
		return clError("clEnqueueCopyBuffer", rc)
	}
	return nil
}

func (d *OpenCLDevice) Read(buf Buffer, offset int, dst []byte) error {
	b, err := d.check(buf, offset, len(dst))
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	rc := C.clEnqueueReadBuffer(d.queue, b.mem, C.CL_TRUE,
		C.size_t(offset), C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if rc != C.CL_SUCCESS {
		return clError("clEnqueueReadBuffer", rc)
	}
	return nil
}

func (d *OpenCLDevice) Write(buf Buffer, offset int, src []byte, blocking bool) (Event, error) {
	b, err := d.check(buf, offset, len(src))
	if err != nil {
		return nil, err
	}
	blockingFlag := C.cl_bool(C.CL_FALSE)
	if blocking {
		blockingFlag = C.CL_TRUE
	}
	var ev C.cl_event
	rc := C.clEnqueueWriteBuffer(d.queue, b.mem, blockingFlag,
		C.size_t(offset), C.size_t(len(src)), unsafe.Pointer(&src[0]), 0, nil, &ev)
	if rc != C.CL_SUCCESS {
		return nil, clError("clEnqueueWriteBuffer", rc)
	}
	return &clEvent{ev: ev}, nil
}

func (d *OpenCLDevice) Finish() error {
	if rc := C.clFinish(d.queue); rc != C.CL_SUCCESS {
		return clError("clFinish", rc)
	}
	return nil
}

func (d *OpenCLDevice) Close() error {
	C.clFinish(d.queue)
	C.clReleaseCommandQueue(d.queue)
	C.clReleaseContext(d.ctx)
	return nil
}

func (d *OpenCLDevice) check(buf Buffer, offset, size int) (*clBuffer, error) {
	b, ok := buf.(*clBuffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("foreign buffer passed to opencl device")
	}
	if b.mem == nil {
		return nil, ErrBufferFreed
	}
	if offset < 0 || size < 0 || offset+size > b.size {
		return nil, ErrOutOfRange
	}
	return b, nil
}

type clBuffer struct {
	dev  *OpenCLDevice
	mem  C.cl_mem
	size int
}

func (b *clBuffer) Size() int { return b.size }

func (b *clBuffer) Release() {
	if b.mem != nil {
		C.clReleaseMemObject(b.mem)
		b.mem = nil
	}
}

type clEvent struct {
	ev C.cl_event
}

func (e *clEvent) Wait() error {
	if rc := C.clWaitForEvents(1, &e.ev); rc != C.CL_SUCCESS {
		return clError("clWaitForEvents", rc)
	}
	return nil
}

func (e *clEvent) OnComplete(fn func()) {
	h := cgo.NewHandle(fn)
	if rc := C.vramfs_set_event_callback(e.ev, C.uintptr_t(h)); rc != C.CL_SUCCESS {
		h.Delete()
		// Callback registration only fails on invalid events; fall back to
		// waiting inline so the cleanup still runs exactly once.
		go func() {
			_ = e.Wait()
			fn()
		}()
	}
}

func clAccess(access Access) C.cl_mem_flags {
	if access == ReadOnly {
		return C.CL_MEM_READ_ONLY
	}
	return C.CL_MEM_READ_WRITE
}

func platformInfo(p C.cl_platform_id, param C.cl_platform_info) string {
	var n C.size_t
	if rc := C.clGetPlatformInfo(p, param, 0, nil, &n); rc != C.CL_SUCCESS || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if rc := C.clGetPlatformInfo(p, param, n, unsafe.Pointer(&buf[0]), nil); rc != C.CL_SUCCESS {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00")
}

func deviceInfo(d C.cl_device_id, param C.cl_device_info) string {
	var n C.size_t
	if rc := C.clGetDeviceInfo(d, param, 0, nil, &n); rc != C.CL_SUCCESS || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if rc := C.clGetDeviceInfo(d, param, n, unsafe.Pointer(&buf[0]), nil); rc != C.CL_SUCCESS {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00")
}

func deviceMemSize(d C.cl_device_id) int64 {
	var size C.cl_ulong
	if rc := C.clGetDeviceInfo(d, C.CL_DEVICE_GLOBAL_MEM_SIZE,
		C.size_t(unsafe.Sizeof(size)), unsafe.Pointer(&size), nil); rc != C.CL_SUCCESS {
		return 0
	}
	return int64(size)
}

// platformAtLeast parses version strings of the form "OpenCL <major>.<minor> ...".
func platformAtLeast(version string, major, minor int) bool {
	var maj, min int
	if _, err := fmt.Sscanf(version, "OpenCL %d.%d", &maj, &min); err != nil {
		return false
	}
	return maj > major || (maj == major && min >= minor)
}

func clError(call string, rc C.cl_int) error {
	return fmt.Errorf("%s failed: %s (%d)", call, clErrorString(rc), int(rc))
}

func clErrorString(rc C.cl_int) string {
	switch rc {
	case C.CL_DEVICE_NOT_FOUND:
		return "CL_DEVICE_NOT_FOUND"
	case C.CL_DEVICE_NOT_AVAILABLE:
		return "CL_DEVICE_NOT_AVAILABLE"
	case C.CL_MEM_OBJECT_ALLOCATION_FAILURE:
		return "CL_MEM_OBJECT_ALLOCATION_FAILURE"
	case C.CL_OUT_OF_RESOURCES:
		return "CL_OUT_OF_RESOURCES"
	case C.CL_OUT_OF_HOST_MEMORY:
		return "CL_OUT_OF_HOST_MEMORY"
	case C.CL_INVALID_VALUE:
		return "CL_INVALID_VALUE"
	case C.CL_INVALID_CONTEXT:
		return "CL_INVALID_CONTEXT"
	case C.CL_INVALID_COMMAND_QUEUE:
		return "CL_INVALID_COMMAND_QUEUE"
	case C.CL_INVALID_MEM_OBJECT:
		return "CL_INVALID_MEM_OBJECT"
	case C.CL_INVALID_BUFFER_SIZE:
		return "CL_INVALID_BUFFER_SIZE"
	case C.CL_INVALID_EVENT:
		return "CL_INVALID_EVENT"
	default:
		return "unknown OpenCL error"
	}
}
