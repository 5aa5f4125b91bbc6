package gpu

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// parallelThreshold is the element count above which CPU kernels are split
// across goroutines.
const parallelThreshold = 1 << 16

// CPUBackend implements Backend on the host CPU. It is the fallback for every
// build and the only backend without the cuda tag.
type CPUBackend struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	initialized bool
	workers     int
}

// NewCPUBackend creates a new CPU backend instance
func NewCPUBackend(logger *zap.Logger) *CPUBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CPUBackend{
		logger:  logger,
		workers: runtime.GOMAXPROCS(0),
	}
}

func (c *CPUBackend) Name() string { return "cpu" }

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU backend initialized", zap.Int("workers", c.workers))
	return nil
}

// Cleanup releases any resources (none for CPU backend)
func (c *CPUBackend) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	return nil
}

// IsAvailable always reports true.
func (c *CPUBackend) IsAvailable() bool {
	return true
}

func (c *CPUBackend) isInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// GetDeviceInfo returns device information for CPU
func (c *CPUBackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:              fmt.Sprintf("CPU (%s, %d threads)", runtime.GOARCH, c.workers),
		TotalMemory:       int64(memory.TotalMemory()),
		AvailableMemory:   int64(memory.FreeMemory()),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
}

// Alloc returns a host-resident buffer standing in for device memory.
func (c *CPUBackend) Alloc(n int) (DeviceBuffer, error) {
	if !c.isInitialized() {
		return nil, ErrNotInitialized
	}
	if n <= 0 {
		return nil, fmt.Errorf("invalid buffer length %d", n)
	}
	return &cpuBuffer{id: bufferSeq.Add(1), n: n, data: make([]float32, n)}, nil
}

// Elementwise computes c = a <op> b.
func (c *CPUBackend) Elementwise(op Op, a, b, out DeviceBuffer) error {
	if !c.isInitialized() {
		return ErrNotInitialized
	}
	if err := checkLengths(a, b, out); err != nil {
		return err
	}
	ab, err := asCPUBuffer(a)
	if err != nil {
		return err
	}
	bb, err := asCPUBuffer(b)
	if err != nil {
		return err
	}
	cb, err := asCPUBuffer(out)
	if err != nil {
		return err
	}

	kernel, err := cpuKernel(op)
	if err != nil {
		return err
	}

	x, y, z, err := lockTriple(ab, bb, cb)
	if err != nil {
		return err
	}
	defer unlockTriple(ab, bb, cb)

	n := len(z)
	if n < parallelThreshold || c.workers < 2 {
		kernel(x, y, z)
		return nil
	}

	chunk := (n + c.workers - 1) / c.workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			kernel(x[lo:hi], y[lo:hi], z[lo:hi])
			return nil
		})
	}
	return g.Wait()
}

// MatrixMultiply performs matrix multiplication using blas32 GEMM.
// Implements C = A * B where A is m×k, B is k×n, and C is m×n
func (c *CPUBackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	if !c.isInitialized() {
		return nil, ErrNotInitialized
	}
	if err := checkMatMul(a, b, m, k, n); err != nil {
		return nil, err
	}

	result := make([]float32, m*n)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: result},
	)
	return result, nil
}

type kernelFunc func(a, b, c []float32)

func cpuKernel(op Op) (kernelFunc, error) {
	switch op {
	case OpAdd:
		return axpyKernel(1), nil
	case OpSub:
		return axpyKernel(-1), nil
	case OpMul:
		return mulKernel, nil
	default:
		return nil, fmt.Errorf("unsupported op %s", op)
	}
}

// axpyKernel computes c = a + alpha*b.
func axpyKernel(alpha float32) kernelFunc {
	return func(a, b, c []float32) {
		n := len(c)
		if n == 0 {
			return
		}
		va := blas32.Vector{N: n, Inc: 1, Data: a}
		vb := blas32.Vector{N: n, Inc: 1, Data: b}
		vc := blas32.Vector{N: n, Inc: 1, Data: c}
		if &b[0] == &c[0] {
			// c aliases b: scale in place, then add a.
			blas32.Scal(alpha, vc)
			blas32.Axpy(1, va, vc)
			return
		}
		blas32.Copy(va, vc)
		blas32.Axpy(alpha, vb, vc)
	}
}

// mulKernel computes the Hadamard product; BLAS has no float32 routine for it.
func mulKernel(a, b, c []float32) {
	for i := range c {
		c[i] = a[i] * b[i]
	}
}

var bufferSeq atomic.Uint64

type cpuBuffer struct {
	id    uint64
	n     int
	mu    sync.Mutex
	data  []float32
	freed bool
}

func asCPUBuffer(buf DeviceBuffer) (*cpuBuffer, error) {
	cb, ok := buf.(*cpuBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer of type %T was not allocated by the CPU backend", buf)
	}
	return cb, nil
}

func (b *cpuBuffer) Len() int { return b.n }

func (b *cpuBuffer) Upload(src []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrBufferReleased
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("%w: upload %d into %d", ErrSizeMismatch, len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

func (b *cpuBuffer) Download(dst []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrBufferReleased
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("%w: download %d into %d", ErrSizeMismatch, len(b.data), len(dst))
	}
	copy(dst, b.data)
	return nil
}

func (b *cpuBuffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrBufferReleased
	}
	b.freed = true
	b.data = nil
	return nil
}

// lockTriple locks the distinct buffers among a, b and c in allocation order
// and returns their data. Buffers may alias (a == b) so each is locked once.
func lockTriple(a, b, c *cpuBuffer) (x, y, z []float32, err error) {
	for _, buf := range distinct(a, b, c) {
		buf.mu.Lock()
	}
	for _, buf := range distinct(a, b, c) {
		if buf.freed {
			unlockTriple(a, b, c)
			return nil, nil, nil, ErrBufferReleased
		}
	}
	return a.data, b.data, c.data, nil
}

func unlockTriple(a, b, c *cpuBuffer) {
	for _, buf := range distinct(a, b, c) {
		buf.mu.Unlock()
	}
}

func distinct(a, b, c *cpuBuffer) []*cpuBuffer {
	out := []*cpuBuffer{a}
	if b != a {
		out = append(out, b)
	}
	if c != a && c != b {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
