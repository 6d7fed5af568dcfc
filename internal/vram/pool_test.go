package vram

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vramfs/vramfs/internal/device"
)

// flakyDevice wraps a working device and injects failures, standing in for
// a GPU running out of memory or refusing transfers.
type flakyDevice struct {
	device.Device
	allocBudget int // CreateBuffer calls allowed before failing; -1 means unlimited
	failWrites  bool
}

var errInjected = errors.New("injected device failure")

func (d *flakyDevice) CreateBuffer(size int, access device.Access) (device.Buffer, error) {
	if d.allocBudget == 0 {
		return nil, errInjected
	}
	if d.allocBudget > 0 {
		d.allocBudget--
	}
	return d.Device.CreateBuffer(size, access)
}

func (d *flakyDevice) Write(buf device.Buffer, offset int, src []byte, blocking bool) (device.Event, error) {
	if d.failWrites {
		return nil, errInjected
	}
	return d.Device.Write(buf, offset, src, blocking)
}

func newTestPool(t *testing.T, opts ...device.HostOption) (*Pool, *device.HostDevice) {
	t.Helper()
	dev := device.NewHostDevice(zap.NewNop(), opts...)
	t.Cleanup(func() { dev.Close() })
	pool := NewPool(dev, zap.NewNop())
	require.True(t, pool.Probe())
	return pool, dev
}

func TestPoolProbe(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		pool, _ := newTestPool(t)
		assert.True(t, pool.Probe())
		assert.True(t, pool.Probe())
	})

	t.Run("no device", func(t *testing.T) {
		pool := NewPool(nil, zap.NewNop())
		assert.False(t, pool.Probe())
	})

	t.Run("fill-incapable device gets a zero buffer", func(t *testing.T) {
		pool, _ := newTestPool(t, device.WithoutFill())
		assert.NotNil(t, pool.zeroBuf)
	})
}

func TestPoolGrow(t *testing.T) {
	t.Run("rounds up to whole blocks", func(t *testing.T) {
		pool, _ := newTestPool(t)
		grown := pool.Grow(5000)
		assert.Equal(t, 2*BlockSize, grown)
		assert.Equal(t, 2, pool.Size())
		assert.Equal(t, 2, pool.Available())
	})

	t.Run("nothing to grow", func(t *testing.T) {
		pool, _ := newTestPool(t)
		assert.Zero(t, pool.Grow(0))
		assert.Zero(t, pool.Grow(-1))
		assert.Zero(t, pool.Size())
	})

	t.Run("monotonic", func(t *testing.T) {
		pool, _ := newTestPool(t)
		require.Equal(t, BlockSize, pool.Grow(1))
		require.Equal(t, 3*BlockSize, pool.Grow(3*BlockSize))
		assert.Equal(t, 4, pool.Size())
		assert.Equal(t, 4, pool.Available())
	})

	t.Run("partial growth is retained", func(t *testing.T) {
		dev := device.NewHostDevice(zap.NewNop())
		t.Cleanup(func() { dev.Close() })
		pool := NewPool(&flakyDevice{Device: dev, allocBudget: 2}, zap.NewNop())
		require.True(t, pool.Probe())

		grown := pool.Grow(5 * BlockSize)
		assert.Equal(t, 2*BlockSize, grown)
		assert.Equal(t, 2, pool.Size())
		assert.Equal(t, 2, pool.Available())

		// A later grow fails outright but the pool keeps what it has.
		assert.Zero(t, pool.Grow(BlockSize))
		assert.Equal(t, 2, pool.Size())
	})
}

func TestPoolAllocate(t *testing.T) {
	t.Run("checkout and release", func(t *testing.T) {
		pool, _ := newTestPool(t)
		require.Equal(t, 2*BlockSize, pool.Grow(2*BlockSize))

		blk := pool.Allocate()
		require.NotNil(t, blk)
		assert.Equal(t, 2, pool.Size())
		assert.Equal(t, 1, pool.Available())

		blk.Free()
		assert.Equal(t, 2, pool.Available())
	})

	t.Run("exhaustion returns nil, not an error", func(t *testing.T) {
		pool, _ := newTestPool(t)
		require.Equal(t, BlockSize, pool.Grow(1))

		first := pool.Allocate()
		require.NotNil(t, first)
		assert.Zero(t, pool.Available())
		assert.Nil(t, pool.Allocate())
	})

	t.Run("unprobed pool allocates nothing", func(t *testing.T) {
		pool := NewPool(nil, zap.NewNop())
		assert.Nil(t, pool.Allocate())
	})
}

// The scenario from the pool's capacity-planning contract: a 5000 byte
// grow admits two 4096 byte blocks, checkout and release move one block
// between the available and checked-out sets.
func TestPoolScenario(t *testing.T) {
	pool, _ := newTestPool(t)

	require.Equal(t, 2*BlockSize, pool.Grow(5000))
	assert.Equal(t, 2, pool.Size())
	assert.Equal(t, 2, pool.Available())

	blk := pool.Allocate()
	require.NotNil(t, blk)
	assert.Equal(t, 1, pool.Available())

	data := bytes.Repeat([]byte{0xA5}, BlockSize)
	require.NoError(t, blk.Write(0, data, false))

	blk.Free()
	assert.Equal(t, 2, pool.Available())
	assert.Equal(t, 2, pool.Size())
}

// A recycled buffer carries stale contents; checkout must re-arm the dirty
// flag so the new owner still reads zeros.
func TestPoolRecycledBlockReadsZero(t *testing.T) {
	for name, opts := range map[string][]device.HostOption{
		"native fill": nil,
		"copy fill":   {device.WithoutFill()},
	} {
		t.Run(name, func(t *testing.T) {
			pool, _ := newTestPool(t, opts...)
			require.Equal(t, BlockSize, pool.Grow(1))

			blk := pool.Allocate()
			require.NotNil(t, blk)
			require.NoError(t, blk.Write(0, bytes.Repeat([]byte{0xFF}, BlockSize), false))
			blk.Free()

			recycled := pool.Allocate()
			require.NotNil(t, recycled)
			got := make([]byte, BlockSize)
			require.NoError(t, recycled.Read(0, got))
			assert.Equal(t, make([]byte, BlockSize), got)
		})
	}
}

func TestPoolClose(t *testing.T) {
	pool, _ := newTestPool(t, device.WithoutFill())
	require.Equal(t, 2*BlockSize, pool.Grow(2*BlockSize))
	require.NoError(t, pool.Close())

	// A closed pool is no longer available until probed again.
	assert.Zero(t, pool.Available())
	assert.Nil(t, pool.Allocate())
}
