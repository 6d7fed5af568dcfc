package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pool metrics
	PoolBlocksTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vramfs_pool_blocks_total",
		Help: "Total number of blocks ever admitted to the pool",
	})

	PoolBlocksAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vramfs_pool_blocks_available",
		Help: "Number of blocks currently free in the pool",
	})

	PoolGrownBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vramfs_pool_grown_bytes_total",
		Help: "Total bytes of device memory admitted through pool growth",
	})

	PoolGrowthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vramfs_pool_growth_failures_total",
		Help: "Number of pool growth requests stopped by an allocation or clear failure",
	})

	// Block transfer metrics
	BlockBytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vramfs_block_read_bytes_total",
		Help: "Total bytes read from blocks, including dirty fast-path reads",
	})

	BlockBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vramfs_block_written_bytes_total",
		Help: "Total bytes written to blocks",
	})

	AsyncWritesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vramfs_block_async_writes_in_flight",
		Help: "Asynchronous block writes whose device transfer has not completed yet",
	})

	TransferFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vramfs_block_transfer_failures_total",
		Help: "Device transfer failures by operation",
	}, []string{"op"})
)
