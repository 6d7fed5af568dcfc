package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPoolMetrics(t *testing.T) {
	t.Run("PoolBlocksTotal", func(t *testing.T) {
		PoolBlocksTotal.Set(16)
		assert.Equal(t, float64(16), testutil.ToFloat64(PoolBlocksTotal))
	})

	t.Run("PoolBlocksAvailable", func(t *testing.T) {
		PoolBlocksAvailable.Set(7)
		assert.Equal(t, float64(7), testutil.ToFloat64(PoolBlocksAvailable))
	})

	t.Run("PoolGrownBytes accumulates", func(t *testing.T) {
		before := testutil.ToFloat64(PoolGrownBytes)
		PoolGrownBytes.Add(8192)
		assert.Equal(t, before+8192, testutil.ToFloat64(PoolGrownBytes))
	})
}

func TestTransferMetrics(t *testing.T) {
	t.Run("AsyncWritesInFlight", func(t *testing.T) {
		AsyncWritesInFlight.Inc()
		AsyncWritesInFlight.Inc()
		AsyncWritesInFlight.Dec()
		assert.GreaterOrEqual(t, testutil.ToFloat64(AsyncWritesInFlight), float64(1))
	})

	t.Run("TransferFailures by op", func(t *testing.T) {
		before := testutil.ToFloat64(TransferFailures.WithLabelValues("write"))
		TransferFailures.WithLabelValues("write").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(TransferFailures.WithLabelValues("write")))
	})
}
