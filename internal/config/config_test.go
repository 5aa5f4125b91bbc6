package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "cpu", config.Device.Backend)
		assert.Equal(t, 1024, config.Device.Dimension)
		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "console", config.Logger.Encoding)
		assert.Equal(t, "127.0.0.1:9090", config.Server.ListenAddress)
		assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
		assert.Equal(t, 4096, config.Server.MaxElements)
		// not set in the file
		assert.Equal(t, 5*time.Second, config.Server.ShutdownTimeout)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("device:\n  backend: opencl\n"), 0600))

		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "device.backend")
	})

	t.Run("template parses to defaults", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/config/config.yaml.template")
		require.NoError(t, err)
		assert.Equal(t, Default(), config)
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dimension", func(c *Config) { c.Device.Dimension = 0 }},
		{"negative dimension", func(c *Config) { c.Device.Dimension = -4 }},
		{"bad encoding", func(c *Config) { c.Logger.Encoding = "xml" }},
		{"no element limit", func(c *Config) { c.Server.MaxElements = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"unknown backend", func(c *Config) { c.Device.Backend = "tpu" }},
	}

	require.NoError(t, Default().Validate())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
