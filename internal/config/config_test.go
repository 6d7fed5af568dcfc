package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, `
mountpoint: /mnt/vram
pool:
  initialSize: 1048576
logger:
  verbosity: debug
metrics:
  listenAddress: 127.0.0.1:9200
`)
		config, err := LoadConfig(path)
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "/mnt/vram", config.Mountpoint)
		assert.EqualValues(t, 1048576, config.Pool.InitialSize)
		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "127.0.0.1:9200", config.Metrics.ListenAddress)
	})

	t.Run("defaults", func(t *testing.T) {
		path := writeConfig(t, "mountpoint: /mnt/vram\n")
		config, err := LoadConfig(path)
		require.NoError(t, err)

		assert.EqualValues(t, 64<<20, config.Pool.InitialSize)
		assert.Equal(t, "info", config.Logger.Verbosity)
		assert.Equal(t, ":9090", config.Metrics.ListenAddress)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "mountpoint: [unclosed\n  nonsense")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
