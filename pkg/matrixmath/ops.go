package matrixmath

import (
	"context"
	"fmt"
	"time"

	"github.com/fxnlabs/matrix-math/internal/gpu"
	"github.com/fxnlabs/matrix-math/internal/metrics"
	"go.uber.org/zap"
)

// Op identifies an elementwise operation.
type Op = gpu.Op

const (
	OpAdd = gpu.OpAdd
	OpSub = gpu.OpSub
	OpMul = gpu.OpMul
)

// ParseOp accepts "add", "sub" or "mul".
func ParseOp(s string) (Op, error) {
	return gpu.ParseOp(s)
}

// Add computes h.C = h.A + h.B elementwise.
func (d *Device) Add(ctx context.Context, h *HostBuffers) error {
	return d.Apply(ctx, OpAdd, h)
}

// Sub computes h.C = h.A - h.B elementwise.
func (d *Device) Sub(ctx context.Context, h *HostBuffers) error {
	return d.Apply(ctx, OpSub, h)
}

// Mul computes h.C = h.A * h.B elementwise.
func (d *Device) Mul(ctx context.Context, h *HostBuffers) error {
	return d.Apply(ctx, OpMul, h)
}

// Apply uploads A and B, runs op on the device and downloads the result into
// C. It blocks until C is populated. ctx is checked before any work is
// dispatched; a kernel that has started runs to completion.
func (d *Device) Apply(ctx context.Context, op Op, h *HostBuffers) (err error) {
	if h == nil {
		return ErrNilBuffers
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if h.dev != d {
		return ErrForeignBuffers
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.freed {
		return ErrBufferFreed
	}
	if len(h.A) != h.n || len(h.B) != h.n || len(h.C) != h.n {
		return fmt.Errorf("%w: allocated %d, got a=%d b=%d c=%d",
			ErrDimensionMismatch, h.n, len(h.A), len(h.B), len(h.C))
	}

	backend := d.mgr.GetBackendType()
	start := time.Now()
	defer func() {
		observe(op.String(), backend, start, err)
		if err != nil {
			d.log.Error("operation failed", zap.Stringer("op", op), zap.Int("n", h.n), zap.Error(err))
			return
		}
		d.log.Debug("operation completed",
			zap.Stringer("op", op),
			zap.Int("n", h.n),
			zap.Duration("elapsed", time.Since(start)))
	}()

	if err := h.da.Upload(h.A); err != nil {
		return fmt.Errorf("upload A: %w", err)
	}
	if err := h.db.Upload(h.B); err != nil {
		return fmt.Errorf("upload B: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.mgr.Elementwise(op, h.da, h.db, h.dc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := h.dc.Download(h.C); err != nil {
		return fmt.Errorf("download C: %w", err)
	}
	return nil
}

// Compute runs op over a and b using a temporary HostBuffers set and returns a
// freshly allocated result.
func (d *Device) Compute(ctx context.Context, op Op, a, b []float32) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: len(a)=%d len(b)=%d", ErrDimensionMismatch, len(a), len(b))
	}

	h, err := d.AllocHost(len(a))
	if err != nil {
		return nil, err
	}
	defer func() {
		if ferr := h.Free(); ferr != nil {
			d.log.Warn("failed to free temporary host buffers", zap.Error(ferr))
		}
	}()

	copy(h.A, a)
	copy(h.B, b)
	if err := d.Apply(ctx, op, h); err != nil {
		return nil, err
	}

	out := make([]float32, len(h.C))
	copy(out, h.C)
	return out, nil
}

// MatMul computes the row-major product of an m×k matrix a and a k×n matrix
// b.
func (d *Device) MatMul(ctx context.Context, a, b []float32, m, k, n int) (c []float32, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m <= 0 || k <= 0 || n <= 0 {
		return nil, fmt.Errorf("%w: m=%d k=%d n=%d", ErrInvalidDimension, m, k, n)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	backend := d.mgr.GetBackendType()
	start := time.Now()
	defer func() { observe("matmul", backend, start, err) }()

	c, err = d.mgr.MatrixMultiply(a, b, m, k, n)
	if err != nil {
		d.log.Error("matrix multiplication failed", zap.Int("m", m), zap.Int("k", k), zap.Int("n", n), zap.Error(err))
		return nil, fmt.Errorf("matmul: %w", err)
	}
	d.log.Debug("matrix multiplication completed",
		zap.Int("m", m), zap.Int("k", k), zap.Int("n", n),
		zap.Duration("elapsed", time.Since(start)))
	return c, nil
}

func observe(op, backend string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.Operations.WithLabelValues(op, backend, status).Inc()
	metrics.OperationDuration.WithLabelValues(op, backend).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
