// Package vram exposes device memory as a pool of fixed-size, recyclable
// blocks and the read/write/synchronization protocol the filesystem layer
// uses to treat that pool as backing storage for file content.
package vram

import (
	"errors"

	"go.uber.org/zap"

	"github.com/vramfs/vramfs/internal/device"
	"github.com/vramfs/vramfs/internal/metrics"
)

// BlockSize is the fixed block length in bytes, shared with the file layer.
const BlockSize = 4096

var (
	ErrDeviceUnavailable = errors.New("device unavailable, probe the pool first")
	ErrOutOfRange        = errors.New("offset and length exceed block size")
	ErrBlockFreed        = errors.New("block already returned to the pool")
)

// Pool owns the device buffers not currently checked out. It never shrinks:
// once a buffer is admitted it only moves between available and checked out.
//
// The pool is not internally synchronized; per the resource model, checkout,
// release and growth are serialized by the caller.
type Pool struct {
	dev device.Device
	log *zap.Logger

	ready   bool
	zeroBuf device.Buffer // clear source on devices without native fill

	free  []device.Buffer
	total int
}

// NewPool creates a pool over dev. No device work happens until Probe.
func NewPool(dev device.Device, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{dev: dev, log: log.Named("pool")}
}

// Probe confirms device availability and negotiates the zero-fill strategy.
// On devices without a native fill primitive it allocates a read-only
// all-zero reference buffer of one block; failure of that allocation makes
// the pool unavailable. Idempotent: once true, later calls are cheap.
func (p *Pool) Probe() bool {
	if p.ready {
		return true
	}
	if p.dev == nil {
		return false
	}
	if !p.dev.FillSupported() {
		buf, err := p.dev.CreateBufferFrom(make([]byte, BlockSize), device.ReadOnly)
		if err != nil {
			p.log.Error("zero reference buffer allocation failed", zap.Error(err))
			return false
		}
		p.zeroBuf = buf
		p.log.Info("device lacks native fill, clearing via buffer copy")
	}
	p.ready = true
	return true
}

// Size returns the total number of blocks ever admitted.
func (p *Pool) Size() int { return p.total }

// Available returns the number of blocks currently free.
func (p *Pool) Available() int { return len(p.free) }

// Grow admits enough whole blocks to cover at least minBytes, zero-filling
// each before it becomes available. Growth is best effort: the first
// allocation or clear failure stops it, and the return value is the byte
// count of blocks actually admitted so callers can detect partial growth.
func (p *Pool) Grow(minBytes int) int {
	if !p.Probe() || minBytes <= 0 {
		return 0
	}
	count := (minBytes + BlockSize - 1) / BlockSize

	admitted := 0
	for ; admitted < count; admitted++ {
		buf, err := p.dev.CreateBuffer(BlockSize, device.ReadWrite)
		if err != nil {
			p.log.Warn("pool growth stopped by allocation failure",
				zap.Int("admitted", admitted), zap.Int("requested", count), zap.Error(err))
			metrics.PoolGrowthFailures.Inc()
			break
		}
		if err := p.clearBuffer(buf); err != nil {
			buf.Release()
			p.log.Warn("pool growth stopped by clear failure",
				zap.Int("admitted", admitted), zap.Int("requested", count), zap.Error(err))
			metrics.PoolGrowthFailures.Inc()
			break
		}
		p.free = append(p.free, buf)
		p.total++
	}

	metrics.PoolBlocksTotal.Set(float64(p.total))
	metrics.PoolBlocksAvailable.Set(float64(len(p.free)))
	metrics.PoolGrownBytes.Add(float64(admitted * BlockSize))
	return admitted * BlockSize
}

// Allocate checks out one free block, transferring ownership to the caller.
// Returns nil when the pool is exhausted; exhaustion is a grow-first signal,
// not an error. Allocate never grows the pool and never blocks.
//
// A checked-out block is always born dirty: the underlying buffer may carry
// stale contents from a previous checkout, and the dirty flag is what keeps
// it logically all-zero.
func (p *Pool) Allocate() *Block {
	if !p.ready || len(p.free) == 0 {
		return nil
	}
	buf := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	metrics.PoolBlocksAvailable.Set(float64(len(p.free)))
	return &Block{pool: p, buf: buf, dirty: true}
}

// release returns a checked-out buffer to the available set. The buffer's
// device contents are not cleared; Allocate re-arms the dirty flag instead.
func (p *Pool) release(buf device.Buffer) {
	p.free = append(p.free, buf)
	metrics.PoolBlocksAvailable.Set(float64(len(p.free)))
}

// clearBuffer zero-fills one whole block, using the native fill primitive
// when available and a copy from the zero reference buffer otherwise. The
// operation is enqueued in order; callers needing host-visible completion
// must synchronize explicitly.
func (p *Pool) clearBuffer(buf device.Buffer) error {
	if p.dev.FillSupported() {
		return p.dev.Fill(buf, 0, BlockSize)
	}
	return p.dev.Copy(p.zeroBuf, buf, 0, 0, BlockSize)
}

// Close drains the queue and releases the zero reference buffer. Checked-out
// blocks must be freed first.
func (p *Pool) Close() error {
	if !p.ready {
		return nil
	}
	if err := p.dev.Finish(); err != nil {
		return err
	}
	for _, buf := range p.free {
		buf.Release()
	}
	p.free = nil
	if p.zeroBuf != nil {
		p.zeroBuf.Release()
		p.zeroBuf = nil
	}
	p.ready = false
	return nil
}
