//go:build cuda

package gpu

/*
#cgo CFLAGS: -I${SRCDIR}/../../cuda
#cgo LDFLAGS: -L${SRCDIR}/../../cuda -lelementwise_cuda -lcudart -lcublas
#include "elementwise.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

// All backends in the process share the device's primary context. It is reset
// only when the last initialized backend cleans up.
var (
	contextMu    sync.Mutex
	liveContexts int
)

// CUDABackend implements Backend using NVIDIA CUDA
type CUDABackend struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	initialized bool
	deviceInfo  DeviceInfo
	available   bool
}

// NewCUDABackend creates a new CUDA backend instance
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := &CUDABackend{
		logger: logger,
	}

	if err := backend.checkDevice(); err != nil {
		logger.Warn("CUDA device not available", zap.Error(err))
		backend.available = false
	} else {
		backend.available = true
	}

	return backend
}

func (c *CUDABackend) Name() string { return "cuda" }

// Initialize creates the CUDA context on device 0
func (c *CUDABackend) Initialize() error {
	if !c.available {
		return ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	c.logger.Debug("Initializing CUDA backend")

	contextMu.Lock()
	defer contextMu.Unlock()

	if result := C.mm_cuda_init(0); result != C.cudaSuccess {
		return fmt.Errorf("failed to initialize CUDA: %v", cudaErrorString(result))
	}

	var info C.MMDeviceInfo
	if result := C.mm_cuda_device_info(&info); result != C.cudaSuccess {
		if liveContexts == 0 {
			_ = C.mm_cuda_cleanup()
		}
		return fmt.Errorf("failed to get device info: %v", cudaErrorString(result))
	}

	c.deviceInfo = DeviceInfo{
		Name:              C.GoString(&info.name[0]),
		TotalMemory:       int64(info.total_memory),
		AvailableMemory:   int64(info.free_memory),
		ComputeCapability: fmt.Sprintf("%d.%d", int(info.major), int(info.minor)),
		DriverVersion:     formatCUDAVersion(int(info.driver_version)),
		CUDAVersion:       formatCUDAVersion(int(info.runtime_version)),
	}

	c.initialized = true
	liveContexts++
	c.logger.Info("CUDA backend initialized",
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))

	return nil
}

func (c *CUDABackend) isInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Alloc reserves n floats of device memory with cudaMalloc.
func (c *CUDABackend) Alloc(n int) (DeviceBuffer, error) {
	if !c.isInitialized() {
		return nil, ErrNotInitialized
	}
	if n <= 0 {
		return nil, fmt.Errorf("invalid buffer length %d", n)
	}

	var ptr *C.float
	if result := C.mm_cuda_malloc(&ptr, C.size_t(n)); result != C.cudaSuccess {
		return nil, fmt.Errorf("cudaMalloc of %d floats failed: %v", n, cudaErrorString(result))
	}
	return &cudaBuffer{ptr: ptr, n: n}, nil
}

// Elementwise launches the kernel for op and waits for it to finish.
func (c *CUDABackend) Elementwise(op Op, a, b, out DeviceBuffer) error {
	if !c.isInitialized() {
		return ErrNotInitialized
	}
	if err := checkLengths(a, b, out); err != nil {
		return err
	}

	var kernel C.int
	switch op {
	case OpAdd:
		kernel = C.MM_OP_ADD
	case OpSub:
		kernel = C.MM_OP_SUB
	case OpMul:
		kernel = C.MM_OP_MUL
	default:
		return fmt.Errorf("unsupported op %s", op)
	}

	pa, err := devicePtr(a)
	if err != nil {
		return err
	}
	pb, err := devicePtr(b)
	if err != nil {
		return err
	}
	pc, err := devicePtr(out)
	if err != nil {
		return err
	}

	c.logger.Debug("Launching CUDA elementwise kernel",
		zap.Stringer("op", op),
		zap.Int("n", out.Len()))

	if result := C.mm_cuda_elementwise(kernel, pa, pb, pc, C.size_t(out.Len())); result != C.cudaSuccess {
		return fmt.Errorf("CUDA %s kernel failed: %v", op, cudaErrorString(result))
	}
	return nil
}

// MatrixMultiply performs matrix multiplication using cuBLAS
func (c *CUDABackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	if !c.isInitialized() {
		return nil, ErrNotInitialized
	}
	if err := checkMatMul(a, b, m, k, n); err != nil {
		return nil, err
	}

	result := make([]float32, m*n)

	c.logger.Debug("Performing CUDA matrix multiplication",
		zap.Int("m", m), zap.Int("k", k), zap.Int("n", n),
		zap.Int("flops", 2*m*k*n))

	cudaResult := C.mm_cuda_matmul(
		(*C.float)(unsafe.Pointer(&a[0])),
		(*C.float)(unsafe.Pointer(&b[0])),
		(*C.float)(unsafe.Pointer(&result[0])),
		C.int(m), C.int(n), C.int(k))
	if cudaResult != C.cudaSuccess {
		return nil, fmt.Errorf("CUDA matrix multiplication failed: %v", cudaErrorString(cudaResult))
	}

	return result, nil
}

// GetDeviceInfo returns information about the CUDA device
func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceInfo
}

// IsAvailable checks if CUDA is available
func (c *CUDABackend) IsAvailable() bool {
	return c.available
}

// Cleanup waits for outstanding work. The last backend to clean up also resets
// the device, releasing the context and any memory still held.
func (c *CUDABackend) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil
	}

	contextMu.Lock()
	defer contextMu.Unlock()
	c.initialized = false
	liveContexts--

	if liveContexts > 0 {
		c.logger.Debug("Releasing CUDA backend", zap.Int("remaining", liveContexts))
		if result := C.mm_cuda_synchronize(); result != C.cudaSuccess {
			return fmt.Errorf("failed to synchronize CUDA device: %v", cudaErrorString(result))
		}
		return nil
	}

	c.logger.Debug("Cleaning up CUDA backend")
	if result := C.mm_cuda_cleanup(); result != C.cudaSuccess {
		return fmt.Errorf("failed to cleanup CUDA: %v", cudaErrorString(result))
	}
	return nil
}

// checkDevice verifies CUDA device availability
func (c *CUDABackend) checkDevice() error {
	if result := C.mm_cuda_check_device(); result != C.cudaSuccess {
		return fmt.Errorf("CUDA device check failed: %v", cudaErrorString(result))
	}
	return nil
}

type cudaBuffer struct {
	mu    sync.Mutex
	ptr   *C.float
	n     int
	freed bool
}

func devicePtr(buf DeviceBuffer) (*C.float, error) {
	cb, ok := buf.(*cudaBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer of type %T was not allocated by the CUDA backend", buf)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.freed {
		return nil, ErrBufferReleased
	}
	return cb.ptr, nil
}

func (b *cudaBuffer) Len() int { return b.n }

func (b *cudaBuffer) Upload(src []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrBufferReleased
	}
	if len(src) != b.n {
		return fmt.Errorf("%w: upload %d into %d", ErrSizeMismatch, len(src), b.n)
	}
	result := C.mm_cuda_upload(b.ptr, (*C.float)(unsafe.Pointer(&src[0])), C.size_t(b.n))
	if result != C.cudaSuccess {
		return fmt.Errorf("host to device copy failed: %v", cudaErrorString(result))
	}
	return nil
}

func (b *cudaBuffer) Download(dst []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrBufferReleased
	}
	if len(dst) != b.n {
		return fmt.Errorf("%w: download %d into %d", ErrSizeMismatch, b.n, len(dst))
	}
	result := C.mm_cuda_download((*C.float)(unsafe.Pointer(&dst[0])), b.ptr, C.size_t(b.n))
	if result != C.cudaSuccess {
		return fmt.Errorf("device to host copy failed: %v", cudaErrorString(result))
	}
	return nil
}

func (b *cudaBuffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrBufferReleased
	}
	b.freed = true
	if result := C.mm_cuda_free(b.ptr); result != C.cudaSuccess {
		return fmt.Errorf("cudaFree failed: %v", cudaErrorString(result))
	}
	b.ptr = nil
	return nil
}

// cudaErrorString converts CUDA error code to string
func cudaErrorString(err C.int) string {
	switch err {
	case C.cudaSuccess:
		return "Success"
	case C.cudaErrorInvalidValue:
		return "Invalid value"
	case C.cudaErrorMemoryAllocation:
		return "Memory allocation failed"
	case C.cudaErrorInitializationError:
		return "Initialization error"
	case C.cudaErrorInsufficientDriver:
		return "Insufficient driver"
	case C.cudaErrorNoDevice:
		return "No CUDA device"
	case C.cudaErrorInvalidDevice:
		return "Invalid device"
	default:
		return fmt.Sprintf("Unknown error (%d)", int(err))
	}
}

// formatCUDAVersion renders the 1000*major + 10*minor encoding used by the
// runtime, e.g. 12040 -> "12.4".
func formatCUDAVersion(v int) string {
	if v <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
