package matrixmath

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/matrix-math/internal/gpu"
	"github.com/fxnlabs/matrix-math/internal/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// HostBuffers is a set of three host buffers of equal length with their device
// mirrors. A and B are operation inputs and C receives the result. The set is
// owned by the caller that allocated it and must be released with Free.
type HostBuffers struct {
	A, B, C []float32

	dev *Device
	n   int

	mu         sync.Mutex
	freed      bool
	da, db, dc gpu.DeviceBuffer
}

// AllocHost allocates three distinct host buffers of n elements each, and the
// matching device buffers on the active backend.
func (d *Device) AllocHost(n int) (*HostBuffers, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	h := &HostBuffers{
		A:   make([]float32, n),
		B:   make([]float32, n),
		C:   make([]float32, n),
		dev: d,
		n:   n,
	}

	var err error
	if h.da, err = d.mgr.Alloc(n); err != nil {
		return nil, fmt.Errorf("allocate device buffer A: %w", err)
	}
	if h.db, err = d.mgr.Alloc(n); err != nil {
		_ = h.da.Free()
		return nil, fmt.Errorf("allocate device buffer B: %w", err)
	}
	if h.dc, err = d.mgr.Alloc(n); err != nil {
		_ = multierr.Combine(h.da.Free(), h.db.Free())
		return nil, fmt.Errorf("allocate device buffer C: %w", err)
	}

	d.live[h] = struct{}{}
	metrics.HostBuffersLive.Inc()
	metrics.HostBufferElements.Observe(float64(n))
	d.log.Debug("host buffers allocated", zap.Int("n", n), zap.Int("live", len(d.live)))
	return h, nil
}

// AllocDefault allocates a set sized by Options.Dimension.
func (d *Device) AllocDefault() (*HostBuffers, error) {
	return d.AllocHost(d.dimension)
}

// Len returns the element count the set was allocated with.
func (h *HostBuffers) Len() int {
	return h.n
}

// Free releases the host and device buffers. A, B and C are set to nil. A
// second Free, or a Free after the Device was closed, returns ErrBufferFreed.
// A set not obtained from AllocHost returns ErrForeignBuffers.
func (h *HostBuffers) Free() error {
	if h == nil || h.dev == nil {
		return ErrForeignBuffers
	}
	d := h.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.freed {
		return ErrBufferFreed
	}

	err := h.release()
	delete(d.live, h)
	d.log.Debug("host buffers freed", zap.Int("n", h.n), zap.Int("live", len(d.live)))
	if err != nil {
		return fmt.Errorf("free host buffers: %w", err)
	}
	return nil
}

// release frees the device mirrors and drops the host slices. Callers hold
// h.mu and the owning Device's lock.
func (h *HostBuffers) release() error {
	if h.freed {
		return nil
	}
	h.freed = true
	metrics.HostBuffersLive.Dec()

	err := multierr.Combine(h.da.Free(), h.db.Free(), h.dc.Free())
	h.A, h.B, h.C = nil, nil, nil
	h.da, h.db, h.dc = nil, nil, nil
	return err
}
