package matrixmath

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/matrix-math/internal/gpu"
	"github.com/fxnlabs/matrix-math/internal/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DeviceInfo describes the device backing a Device.
type DeviceInfo = gpu.DeviceInfo

// Options configures Open.
type Options struct {
	// Backend is "auto", "cpu" or "cuda". Empty means "auto".
	Backend string
	// Dimension is the element count used by AllocDefault.
	Dimension int
	// Logger receives lifecycle and per-operation logs. Nil discards them.
	Logger *zap.Logger
}

// Device is an initialized compute backend session. It moves from open to
// closed exactly once. After Close, AllocHost, AllocDefault, the elementwise
// operations, Compute and MatMul return ErrDeviceClosed, as does a second
// Close. The accessors keep answering: Backend reports "none" and Live
// reports zero.
type Device struct {
	mgr       *gpu.Manager
	log       *zap.Logger
	dimension int

	// mu guards closed and live. Operations hold it for reading so Close
	// waits for them to drain. Lock order is Device.mu then HostBuffers.mu.
	mu     sync.RWMutex
	closed bool
	live   map[*HostBuffers]struct{}
}

// Open selects and initializes a backend and returns the Device owning it.
// Opening several Devices is allowed; each owns its own backend session.
func Open(opts Options) (*Device, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("device")

	if opts.Dimension < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, opts.Dimension)
	}

	mgr, err := gpu.NewManager(opts.Backend, log.Named("gpu"))
	if err != nil {
		log.Error("failed to initialize backend", zap.String("preference", opts.Backend), zap.Error(err))
		return nil, fmt.Errorf("open device: %w", err)
	}

	d := &Device{
		mgr:       mgr,
		log:       log,
		dimension: opts.Dimension,
		live:      make(map[*HostBuffers]struct{}),
	}

	info := mgr.GetDeviceInfo()
	log.Info("device opened",
		zap.String("backend", mgr.GetBackendType()),
		zap.String("device", info.Name),
		zap.String("compute_capability", info.ComputeCapability))

	metrics.DeviceOpens.WithLabelValues(mgr.GetBackendType()).Inc()
	metrics.DevicesOpen.Inc()
	return d, nil
}

// Close frees any HostBuffers still allocated and releases the backend.
// A second Close returns ErrDeviceClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.closed = true
	metrics.DevicesOpen.Dec()

	var err error
	if len(d.live) > 0 {
		d.log.Warn("closing device with live host buffers", zap.Int("count", len(d.live)))
	}
	for h := range d.live {
		h.mu.Lock()
		err = multierr.Append(err, h.release())
		h.mu.Unlock()
		delete(d.live, h)
	}

	if cerr := d.mgr.Cleanup(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("backend cleanup: %w", cerr))
	}

	if err != nil {
		d.log.Error("device closed with errors", zap.Error(err))
		return fmt.Errorf("close device: %w", err)
	}
	d.log.Info("device closed")
	return nil
}

// Backend returns the name of the active backend, "none" once closed.
func (d *Device) Backend() string {
	return d.mgr.GetBackendType()
}

// Info reports the device behind the active backend.
func (d *Device) Info() DeviceInfo {
	return d.mgr.GetDeviceInfo()
}

// IsGPU reports whether a GPU backend (not the CPU fallback) is active.
func (d *Device) IsGPU() bool {
	return d.mgr.IsGPUAvailable()
}

// Dimension returns the default element count used by AllocDefault.
func (d *Device) Dimension() int {
	return d.dimension
}

// Live returns the number of HostBuffers sets allocated and not yet freed.
func (d *Device) Live() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.live)
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
