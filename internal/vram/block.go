package vram

import (
	"github.com/vramfs/vramfs/internal/device"
	"github.com/vramfs/vramfs/internal/metrics"
)

// Block is one checked-out unit of device memory, exclusively owned by the
// caller that allocated it. A dirty block is logically all-zero everywhere;
// its physical device contents are unspecified until the first write
// materializes them.
type Block struct {
	pool  *Pool
	buf   device.Buffer
	dirty bool

	// Completion handle of the most recent write, pending or not.
	lastWrite device.Event
}

// Read copies len(dst) bytes starting at offset into dst. Dirty blocks are
// served from the host without touching the device. Otherwise the read
// blocks until the device completes it; the in-order queue guarantees any
// earlier write to this block has landed first.
func (b *Block) Read(offset int, dst []byte) error {
	if b.buf == nil {
		return ErrBlockFreed
	}
	if offset < 0 || offset+len(dst) > BlockSize {
		return ErrOutOfRange
	}
	if b.dirty {
		clear(dst)
		metrics.BlockBytesRead.Add(float64(len(dst)))
		return nil
	}
	if err := b.pool.dev.Read(b.buf, offset, dst); err != nil {
		metrics.TransferFailures.WithLabelValues("read").Inc()
		return err
	}
	metrics.BlockBytesRead.Add(float64(len(dst)))
	return nil
}

// Write transfers src to the device at offset.
//
// A partial write to a dirty block first zero-fills the buffer on the
// device, so the untouched remainder keeps reading as zero once the dirty
// fast path is disabled.
//
// With async set the call returns as soon as the transfer is enqueued. The
// caller's src may be reused immediately: the bytes are staged into a
// pooled host copy that the device completion callback releases, exactly
// once, after the transfer finishes. A blocking write uses src directly.
//
// A failed write leaves the dirty flag unchanged, so retrying is safe.
func (b *Block) Write(offset int, src []byte, async bool) error {
	if b.buf == nil {
		return ErrBlockFreed
	}
	if offset < 0 || offset+len(src) > BlockSize {
		return ErrOutOfRange
	}

	if b.dirty && len(src) != BlockSize {
		if err := b.pool.clearBuffer(b.buf); err != nil {
			metrics.TransferFailures.WithLabelValues("clear").Inc()
			return err
		}
	}

	data := src
	var staged *[]byte
	if async {
		staged = getStaging()
		data = (*staged)[:len(src)]
		copy(data, src)
	}

	ev, err := b.pool.dev.Write(b.buf, offset, data, !async)
	if err != nil {
		if staged != nil {
			putStaging(staged)
		}
		metrics.TransferFailures.WithLabelValues("write").Inc()
		return err
	}
	if staged != nil {
		metrics.AsyncWritesInFlight.Inc()
		ev.OnComplete(func() {
			putStaging(staged)
			metrics.AsyncWritesInFlight.Dec()
		})
	}

	b.lastWrite = ev
	b.dirty = false
	metrics.BlockBytesWritten.Add(float64(len(src)))
	return nil
}

// Sync blocks until the most recent write has completed on the device.
// Needed whenever a write must be visible outside the ordering of the
// single in-order queue. Without a recorded write, or after one has
// completed, Sync is a no-op.
func (b *Block) Sync() error {
	if b.lastWrite == nil {
		return nil
	}
	return b.lastWrite.Wait()
}

// Free returns the underlying buffer to the pool. It neither waits for a
// pending write nor clears the device contents; the next checkout of this
// buffer starts dirty again. Free is idempotent.
func (b *Block) Free() {
	if b.buf == nil {
		return
	}
	b.pool.release(b.buf)
	b.buf = nil
}
