package gpu

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSizeMismatch is returned when buffers handed to a backend do not agree
	// in length.
	ErrSizeMismatch = errors.New("gpu: buffer size mismatch")

	// ErrBufferReleased is returned when a device buffer is used after Free.
	ErrBufferReleased = errors.New("gpu: device buffer already released")

	// ErrNotInitialized is returned by backends used before Initialize.
	ErrNotInitialized = errors.New("gpu: backend not initialized")

	// ErrUnavailable is returned when a requested backend cannot run here.
	ErrUnavailable = errors.New("gpu: backend not available")
)

// Op identifies an elementwise binary operation.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp maps "add", "sub" and "mul" (case insensitive) to an Op.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add", "+":
		return OpAdd, nil
	case "sub", "-":
		return OpSub, nil
	case "mul", "*":
		return OpMul, nil
	default:
		return 0, fmt.Errorf("unknown elementwise op: %q", s)
	}
}

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	CUDAVersion       string `json:"cudaVersion,omitempty"`
}

// DeviceBuffer is a region of device memory mirroring one host buffer.
// CPU backends keep it in ordinary Go memory.
type DeviceBuffer interface {
	// Len returns the number of float32 elements.
	Len() int
	// Upload copies src from host to device. len(src) must equal Len().
	Upload(src []float32) error
	// Download copies device contents into dst. len(dst) must equal Len().
	Download(dst []float32) error
	// Free releases the device memory. Further use returns ErrBufferReleased.
	Free() error
}

// Backend defines the interface for compute backends.
// This interface allows for multiple implementations (CUDA, CPU) behind a
// single API for device buffers and elementwise kernels.
//
// Implementation notes:
// - Automatic fallback to CPU is handled by the Manager, not the backend
// - Backends must be safe for concurrent use once initialized
// - Every buffer returned by Alloc must be released with Free
type Backend interface {
	// Name returns a short identifier such as "cpu" or "cuda".
	Name() string

	// Alloc reserves a device buffer of n float32 elements.
	Alloc(n int) (DeviceBuffer, error)

	// Elementwise computes c = a <op> b over device buffers of equal length.
	// It returns once the result is resident in c.
	Elementwise(op Op, a, b, c DeviceBuffer) error

	// MatrixMultiply performs matrix multiplication C = A * B
	// where A is m×k, B is k×n, and C is m×n, all row-major.
	MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error)

	// GetDeviceInfo returns information about the device
	GetDeviceInfo() DeviceInfo

	// IsAvailable performs a quick check without heavy initialization
	IsAvailable() bool

	// Initialize prepares the backend for use. Calling it twice is a no-op.
	Initialize() error

	// Cleanup releases any resources held by the backend
	Cleanup() error
}

func checkLengths(a, b, c DeviceBuffer) error {
	if a == nil || b == nil || c == nil {
		return fmt.Errorf("%w: nil device buffer", ErrSizeMismatch)
	}
	if a.Len() != b.Len() || a.Len() != c.Len() {
		return fmt.Errorf("%w: a=%d b=%d c=%d", ErrSizeMismatch, a.Len(), b.Len(), c.Len())
	}
	return nil
}

func checkMatMul(a, b []float32, m, k, n int) error {
	if m <= 0 || k <= 0 || n <= 0 {
		return fmt.Errorf("invalid matrix dimensions: m=%d k=%d n=%d", m, k, n)
	}
	if len(a) != m*k {
		return fmt.Errorf("%w: matrix A expected %d, got %d", ErrSizeMismatch, m*k, len(a))
	}
	if len(b) != k*n {
		return fmt.Errorf("%w: matrix B expected %d, got %d", ErrSizeMismatch, k*n, len(b))
	}
	return nil
}
