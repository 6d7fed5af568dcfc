package device

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// HostDevice emulates a compute device in host memory. It backs the pool
// when no GPU is compiled in and is the device used by the test suite.
//
// A single worker goroutine executes submitted operations strictly in
// submission order, mirroring the in-order queue contract of a real device.
// Completion callbacks run on their own goroutine, standing in for the
// driver thread.
type HostDevice struct {
	log  *zap.Logger
	fill bool

	mu     sync.Mutex
	closed bool
	ops    chan func()
	done   chan struct{}
}

// HostOption configures a HostDevice.
type HostOption func(*HostDevice)

// WithoutFill disables the native fill primitive, forcing callers onto
// their copy-from-zero-buffer fallback.
func WithoutFill() HostOption {
	return func(d *HostDevice) { d.fill = false }
}

// NewHostDevice creates a host-memory device with an in-order queue.
func NewHostDevice(log *zap.Logger, opts ...HostOption) *HostDevice {
	if log == nil {
		log = zap.NewNop()
	}
	d := &HostDevice{
		log:  log,
		fill: true,
		ops:  make(chan func(), 64),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

func (d *HostDevice) run() {
	for fn := range d.ops {
		fn()
	}
	close(d.done)
}

// submit enqueues fn, failing if the device has been closed.
func (d *HostDevice) submit(fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.ops <- fn
	return nil
}

// submitWait enqueues fn and blocks until the worker has executed it.
func (d *HostDevice) submitWait(fn func() error) error {
	errc := make(chan error, 1)
	if err := d.submit(func() { errc <- fn() }); err != nil {
		return err
	}
	return <-errc
}

func (d *HostDevice) Info() Info {
	return Info{
		Name:        fmt.Sprintf("Host (%s)", runtime.GOARCH),
		Vendor:      "host",
		Version:     runtime.Version(),
		TotalMemory: 8 << 30,
		FillBuffer:  d.fill,
	}
}

func (d *HostDevice) CreateBuffer(size int, access Access) (Buffer, error) {
	if size <= 0 {
		return nil, ErrOutOfRange
	}
	data := make([]byte, size)
	// Fresh device memory carries no contents guarantee. Poison it so a
	// missing clear cannot hide behind Go's zeroed allocations.
	for i := range data {
		data[i] = 0xCD
	}
	return &hostBuffer{dev: d, data: data}, nil
}

func (d *HostDevice) CreateBufferFrom(data []byte, access Access) (Buffer, error) {
	if len(data) == 0 {
		return nil, ErrOutOfRange
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &hostBuffer{dev: d, data: cp}, nil
}

func (d *HostDevice) FillSupported() bool {
	return d.fill
}

func (d *HostDevice) Fill(buf Buffer, offset, size int) error {
	if !d.fill {
		return ErrFillUnsupported
	}
	b, err := d.check(buf, offset, size)
	if err != nil {
		return err
	}
	return d.submit(func() {
		region := b.bytes()
		if region == nil {
			return
		}
		clear(region[offset : offset+size])
	})
}

func (d *HostDevice) Copy(src, dst Buffer, srcOff, dstOff, size int) error {
	sb, err := d.check(src, srcOff, size)
	if err != nil {
		return err
	}
	db, err := d.check(dst, dstOff, size)
	if err != nil {
		return err
	}
	return d.submit(func() {
		from, to := sb.bytes(), db.bytes()
		if from == nil || to == nil {
			return
		}
		copy(to[dstOff:dstOff+size], from[srcOff:srcOff+size])
	})
}

func (d *HostDevice) Read(buf Buffer, offset int, dst []byte) error {
	b, err := d.check(buf, offset, len(dst))
	if err != nil {
		return err
	}
	return d.submitWait(func() error {
		region := b.bytes()
		if region == nil {
			return ErrBufferFreed
		}
		copy(dst, region[offset:offset+len(dst)])
		return nil
	})
}

func (d *HostDevice) Write(buf Buffer, offset int, src []byte, blocking bool) (Event, error) {
	b, err := d.check(buf, offset, len(src))
	if err != nil {
		return nil, err
	}
	ev := newHostEvent()
	op := func() error {
		region := b.bytes()
		if region == nil {
			ev.complete(ErrBufferFreed)
			return ErrBufferFreed
		}
		copy(region[offset:offset+len(src)], src)
		ev.complete(nil)
		return nil
	}
	if blocking {
		if err := d.submitWait(op); err != nil {
			return nil, err
		}
		return ev, nil
	}
	if err := d.submit(func() { _ = op() }); err != nil {
		return nil, err
	}
	return ev, nil
}

func (d *HostDevice) Finish() error {
	return d.submitWait(func() error { return nil })
}

func (d *HostDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ops)
	d.mu.Unlock()
	<-d.done
	return nil
}

// check validates that buf belongs to this device, is still live, and that
// the offset/size range lies within it.
func (d *HostDevice) check(buf Buffer, offset, size int) (*hostBuffer, error) {
	b, ok := buf.(*hostBuffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("foreign buffer passed to host device")
	}
	if b.bytes() == nil {
		return nil, ErrBufferFreed
	}
	if offset < 0 || size < 0 || offset+size > buf.Size() {
		return nil, ErrOutOfRange
	}
	return b, nil
}

type hostBuffer struct {
	dev  *HostDevice
	mu   sync.Mutex
	data []byte
	size int
}

func (b *hostBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *hostBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return b.size
	}
	return len(b.data)
}

func (b *hostBuffer) Release() {
	b.mu.Lock()
	b.size = len(b.data)
	b.data = nil
	b.mu.Unlock()
}

// hostEvent implements Event for queue operations on the host device.
type hostEvent struct {
	mu        sync.Mutex
	completed bool
	err       error
	callbacks []func()
	done      chan struct{}
}

func newHostEvent() *hostEvent {
	return &hostEvent{done: make(chan struct{})}
}

func (e *hostEvent) complete(err error) {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		return
	}
	e.completed = true
	e.err = err
	cbs := e.callbacks
	e.callbacks = nil
	e.mu.Unlock()

	close(e.done)
	if len(cbs) > 0 {
		// Callbacks fire off the queue worker, as a driver thread would.
		go func() {
			for _, cb := range cbs {
				cb()
			}
		}()
	}
}

func (e *hostEvent) Wait() error {
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *hostEvent) OnComplete(fn func()) {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		go fn()
		return
	}
	e.callbacks = append(e.callbacks, fn)
	e.mu.Unlock()
}
