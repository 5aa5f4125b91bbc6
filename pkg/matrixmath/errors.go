package matrixmath

import (
	"context"
	"errors"

	"github.com/fxnlabs/matrix-math/internal/gpu"
)

// Sentinel errors returned by Device and HostBuffers methods.
var (
	// ErrDeviceClosed is returned by any call on a Device after Close.
	ErrDeviceClosed = errors.New("matrixmath: device closed")

	// ErrBufferFreed is returned when a HostBuffers set is used or freed
	// after Free, or after its Device was closed.
	ErrBufferFreed = errors.New("matrixmath: host buffers already freed")

	// ErrForeignBuffers is returned when buffers allocated by one Device are
	// passed to another.
	ErrForeignBuffers = errors.New("matrixmath: host buffers belong to another device")

	// ErrNilBuffers is returned when a nil *HostBuffers is passed.
	ErrNilBuffers = errors.New("matrixmath: nil host buffers")

	// ErrInvalidDimension is returned for a non-positive element count.
	ErrInvalidDimension = errors.New("matrixmath: invalid dimension")

	// ErrDimensionMismatch is returned when A, B and C do not share the
	// length the set was allocated with.
	ErrDimensionMismatch = errors.New("matrixmath: dimension mismatch")
)

// Status codes returned by StatusCode.
const (
	StatusOK = iota
	StatusNoDevice
	StatusDeviceClosed
	StatusInvalidBuffers
	StatusInvalidDimension
	StatusCanceled
	StatusBackendFailure
)

// StatusCode reduces err to an integer status, zero for success. It is meant
// for process exit codes and other C-style callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, gpu.ErrUnavailable):
		return StatusNoDevice
	case errors.Is(err, ErrDeviceClosed):
		return StatusDeviceClosed
	case errors.Is(err, ErrBufferFreed), errors.Is(err, ErrForeignBuffers), errors.Is(err, ErrNilBuffers):
		return StatusInvalidBuffers
	case errors.Is(err, ErrInvalidDimension), errors.Is(err, ErrDimensionMismatch), errors.Is(err, gpu.ErrSizeMismatch):
		return StatusInvalidDimension
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusBackendFailure
	}
}
