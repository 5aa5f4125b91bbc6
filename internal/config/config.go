package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "config.yaml"

type Config struct {
	Device struct {
		// Backend is one of auto, cpu or cuda.
		Backend   string `yaml:"backend"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"device"`
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"logger"`
	Server struct {
		ListenAddress   string        `yaml:"listenAddress"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		MaxElements     int           `yaml:"maxElements"`
	} `yaml:"server"`
}

// Default returns the configuration used for any field a file leaves unset.
func Default() *Config {
	var c Config
	c.Device.Backend = "auto"
	c.Device.Dimension = 3
	c.Logger.Verbosity = "info"
	c.Logger.Encoding = "json"
	c.Server.ListenAddress = ":8080"
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 5 * time.Second
	c.Server.MaxElements = 1 << 24
	return &c
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate reports the first field holding an unusable value.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Device.Backend) {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("device.backend must be auto, cpu or cuda, got %q", c.Device.Backend)
	}
	if c.Device.Dimension <= 0 {
		return fmt.Errorf("device.dimension must be positive, got %d", c.Device.Dimension)
	}
	switch c.Logger.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("logger.encoding must be json or console, got %q", c.Logger.Encoding)
	}
	if c.Server.MaxElements <= 0 {
		return fmt.Errorf("server.maxElements must be positive, got %d", c.Server.MaxElements)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdownTimeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	return nil
}
