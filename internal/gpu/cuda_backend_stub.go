//go:build !cuda

package gpu

import "go.uber.org/zap"

// CUDABackend is a stub type when built without the cuda tag
type CUDABackend struct {
	logger *zap.Logger
}

// NewCUDABackend returns a backend that is never available.
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	return &CUDABackend{logger: logger}
}

func (c *CUDABackend) Name() string { return "cuda" }

func (c *CUDABackend) Alloc(n int) (DeviceBuffer, error) {
	return nil, ErrUnavailable
}

func (c *CUDABackend) Elementwise(op Op, a, b, out DeviceBuffer) error {
	return ErrUnavailable
}

func (c *CUDABackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	return nil, ErrUnavailable
}

func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "CUDA not available"}
}

func (c *CUDABackend) IsAvailable() bool {
	return false
}

func (c *CUDABackend) Initialize() error {
	return ErrUnavailable
}

func (c *CUDABackend) Cleanup() error {
	return nil
}
