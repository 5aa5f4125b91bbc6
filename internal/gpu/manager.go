package gpu

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Backend preferences accepted by NewManager.
const (
	PreferAuto = "auto"
	PreferCPU  = "cpu"
	PreferCUDA = "cuda"
)

// Manager handles backend selection and lifecycle
type Manager struct {
	backend Backend
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a new manager and initializes the backend named by
// preference. "auto" tries CUDA first and falls back to CPU; an explicit
// "cuda" fails when no device is usable.
func NewManager(preference string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger: logger,
	}

	if err := m.detectAndInitialize(strings.ToLower(strings.TrimSpace(preference))); err != nil {
		return nil, err
	}

	return m, nil
}

// detectAndInitialize detects available backends and initializes the best one
func (m *Manager) detectAndInitialize(preference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch preference {
	case "", PreferAuto:
		if cudaBackend := m.tryCreateCUDABackend(); cudaBackend.IsAvailable() {
			err := cudaBackend.Initialize()
			if err == nil {
				m.backend = cudaBackend
				return nil
			}
			m.logger.Warn("CUDA backend failed to initialize, falling back to CPU", zap.Error(err))
			_ = cudaBackend.Cleanup()
		}
	case PreferCUDA:
		cudaBackend := m.tryCreateCUDABackend()
		if !cudaBackend.IsAvailable() {
			return fmt.Errorf("%w: cuda", ErrUnavailable)
		}
		if err := cudaBackend.Initialize(); err != nil {
			_ = cudaBackend.Cleanup()
			return fmt.Errorf("failed to initialize CUDA backend: %w", err)
		}
		m.backend = cudaBackend
		return nil
	case PreferCPU:
	default:
		return fmt.Errorf("unknown backend preference %q", preference)
	}

	// Fall back to CPU
	cpuBackend := NewCPUBackend(m.logger)
	if err := cpuBackend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CPU backend: %w", err)
	}
	m.backend = cpuBackend
	return nil
}

// tryCreateCUDABackend probes for a CUDA device. Builds without the cuda tag
// get a stub that always reports unavailable.
func (m *Manager) tryCreateCUDABackend() Backend {
	return NewCUDABackend(m.logger.Named("cuda"))
}

// GetBackend returns the current backend, nil after Cleanup.
func (m *Manager) GetBackend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

func (m *Manager) active() (Backend, error) {
	backend := m.GetBackend()
	if backend == nil {
		return nil, ErrNotInitialized
	}
	return backend, nil
}

// Alloc reserves a device buffer on the selected backend.
func (m *Manager) Alloc(n int) (DeviceBuffer, error) {
	backend, err := m.active()
	if err != nil {
		return nil, err
	}
	return backend.Alloc(n)
}

// Elementwise runs op on the selected backend.
func (m *Manager) Elementwise(op Op, a, b, c DeviceBuffer) error {
	backend, err := m.active()
	if err != nil {
		return err
	}
	return backend.Elementwise(op, a, b, c)
}

// MatrixMultiply performs matrix multiplication using the selected backend
func (mgr *Manager) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	backend, err := mgr.active()
	if err != nil {
		return nil, err
	}
	return backend.MatrixMultiply(a, b, m, k, n)
}

// GetDeviceInfo returns device information from the current backend
func (m *Manager) GetDeviceInfo() DeviceInfo {
	backend := m.GetBackend()
	if backend == nil {
		return DeviceInfo{Name: "No backend available"}
	}
	return backend.GetDeviceInfo()
}

// IsGPUAvailable returns true if a GPU backend is active
func (m *Manager) IsGPUAvailable() bool {
	backend := m.GetBackend()
	if backend == nil {
		return false
	}
	_, isCPU := backend.(*CPUBackend)
	return !isCPU
}

// Cleanup releases resources held by the current backend. It is safe to call
// more than once.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Cleanup(); err != nil {
			return err
		}
		m.backend = nil
	}
	return nil
}

// GetBackendType returns the name of the current backend, "none" after Cleanup.
func (m *Manager) GetBackendType() string {
	backend := m.GetBackend()
	if backend == nil {
		return "none"
	}
	return backend.Name()
}
