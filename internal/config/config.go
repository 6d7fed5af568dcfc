package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mountpoint string `yaml:"mountpoint"`
	Pool       struct {
		// InitialSize is the device memory reserved at mount, in bytes.
		// Rounded up to whole blocks by the pool.
		InitialSize int64 `yaml:"initialSize"`
	} `yaml:"pool"`
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Pool.InitialSize == 0 {
		c.Pool.InitialSize = 64 << 20
	}
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = "info"
	}
	if c.Metrics.ListenAddress == "" {
		c.Metrics.ListenAddress = ":9090"
	}
}
