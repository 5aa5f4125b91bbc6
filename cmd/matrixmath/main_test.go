package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/matrix-math/fixtures"
	"github.com/fxnlabs/matrix-math/pkg/matrixmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with exit handling disabled so cli.Exit errors are
// returned instead of terminating the test binary.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"matrixmath"}, args...))
	return out.String(), err
}

func TestCompute(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	tests := []struct {
		op   string
		want string
	}{
		{"add", "[5 7 9]\n"},
		{"sub", "[-3 -3 -3]\n"},
		{"mul", "[4 10 18]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			out, err := runApp(t, "--config", cfg, "--backend", "cpu",
				"compute", "--op", tt.op, "--a", "1,2,3", "--b", "4,5,6")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCompute_LengthMismatch(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := runApp(t, "--config", cfg, "--backend", "cpu",
		"compute", "--op", "add", "--a", "1,2,3", "--b", "4,5")
	require.Error(t, err)

	exitErr, ok := err.(cli.ExitCoder)
	require.True(t, ok, "expected an exit coder, got %T", err)
	assert.Equal(t, matrixmath.StatusInvalidDimension, exitErr.ExitCode())
}

func TestCompute_UnknownOp(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := runApp(t, "--config", cfg, "--backend", "cpu",
		"compute", "--op", "div", "--a", "1", "--b", "1")
	assert.Error(t, err)
}

func TestBackendOverride_Invalid(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := runApp(t, "--config", cfg, "--backend", "tpu", "info")
	assert.ErrorContains(t, err, "device.backend")
}

func TestInfo(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	out, err := runApp(t, "--config", cfg, "--backend", "cpu", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:            cpu")
	assert.Contains(t, out, "CUDA available:")
}

func TestInit(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")

	_, err := runApp(t, "--config", cfg, "init")
	require.NoError(t, err)
	data, err := os.ReadFile(cfg)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	_, err = runApp(t, "--config", cfg, "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = runApp(t, "--config", cfg, "init", "--force")
	assert.NoError(t, err)
}
