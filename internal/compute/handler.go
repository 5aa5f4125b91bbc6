package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fxnlabs/matrix-math/internal/gpu"
	"github.com/fxnlabs/matrix-math/internal/metrics"
	"github.com/fxnlabs/matrix-math/pkg/matrixmath"
	"go.uber.org/zap"
)

// Device is the part of *matrixmath.Device the handlers need.
type Device interface {
	Compute(ctx context.Context, op matrixmath.Op, a, b []float32) ([]float32, error)
	MatMul(ctx context.Context, a, b []float32, m, k, n int) ([]float32, error)
	Backend() string
	Info() matrixmath.DeviceInfo
}

// ElementwiseRequest is the body of POST /v1/elementwise.
type ElementwiseRequest struct {
	Op string    `json:"op"`
	A  []float32 `json:"a"`
	B  []float32 `json:"b"`
}

// ElementwiseResponse carries C = A <op> B.
type ElementwiseResponse struct {
	Op      string    `json:"op"`
	Backend string    `json:"backend"`
	C       []float32 `json:"c"`
}

// MatMulRequest is the body of POST /v1/matmul.
type MatMulRequest struct {
	A [][]float64 `json:"a"`
	B [][]float64 `json:"b"`
	// Verify runs Freivalds' check on the product before responding.
	Verify bool `json:"verify,omitempty"`
}

// MatMulResponse carries C = A * B.
type MatMulResponse struct {
	Backend  string      `json:"backend"`
	C        [][]float64 `json:"c"`
	Verified *bool       `json:"verified,omitempty"`
}

// freivaldsRounds bounds the false positive rate of verification at 2^-10.
const freivaldsRounds = 10

// NewHandler returns the compute API mux. maxElements caps the element count
// of any single input.
func NewHandler(log *zap.Logger, dev Device, maxElements int) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/elementwise", metrics.Middleware(ElementwiseHandler(log, dev, maxElements), "/v1/elementwise"))
	mux.Handle("/v1/matmul", metrics.Middleware(MatMulHandler(log, dev, maxElements), "/v1/matmul"))
	mux.Handle("/v1/device", metrics.Middleware(DeviceHandler(dev), "/v1/device"))
	return mux
}

// ElementwiseHandler handles elementwise requests.
func ElementwiseHandler(log *zap.Logger, dev Device, maxElements int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req ElementwiseRequest
		if err := decodeBody(w, r, maxElements, &req); err != nil {
			http.Error(w, err.Error(), requestStatus(err))
			return
		}

		op, err := matrixmath.ParseOp(req.Op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.A) == 0 {
			http.Error(w, "a and b must not be empty", http.StatusBadRequest)
			return
		}
		if len(req.A) > maxElements || len(req.B) > maxElements {
			http.Error(w, fmt.Sprintf("inputs exceed %d elements", maxElements), http.StatusRequestEntityTooLarge)
			return
		}

		c, err := dev.Compute(r.Context(), op, req.A, req.B)
		if err != nil {
			log.Warn("elementwise request failed", zap.Stringer("op", op), zap.Int("n", len(req.A)), zap.Error(err))
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		writeJSON(w, ElementwiseResponse{Op: op.String(), Backend: dev.Backend(), C: c})
	}
}

// MatMulHandler handles matrix multiplication requests.
func MatMulHandler(log *zap.Logger, dev Device, maxElements int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req MatMulRequest
		if err := decodeBody(w, r, maxElements, &req); err != nil {
			http.Error(w, err.Error(), requestStatus(err))
			return
		}

		a, err := toDense(req.A)
		if err != nil {
			http.Error(w, "matrix a: "+err.Error(), http.StatusBadRequest)
			return
		}
		b, err := toDense(req.B)
		if err != nil {
			http.Error(w, "matrix b: "+err.Error(), http.StatusBadRequest)
			return
		}
		m, k := a.Dims()
		kb, n := b.Dims()
		if k != kb {
			http.Error(w, fmt.Sprintf("matrix dimensions are not compatible for multiplication: %dx%d * %dx%d", m, k, kb, n), http.StatusBadRequest)
			return
		}
		if m*k > maxElements || kb*n > maxElements || m*n > maxElements {
			http.Error(w, fmt.Sprintf("matrices exceed %d elements", maxElements), http.StatusRequestEntityTooLarge)
			return
		}

		flat, err := dev.MatMul(r.Context(), flatten32(a), flatten32(b), m, k, n)
		if err != nil {
			log.Warn("matmul request failed", zap.Int("m", m), zap.Int("k", k), zap.Int("n", n), zap.Error(err))
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		c := fromFlat32(flat, m, n)
		resp := MatMulResponse{Backend: dev.Backend(), C: rows(c)}
		if req.Verify {
			ok := FreivaldsVerify(a, b, c, freivaldsRounds)
			if !ok {
				log.Error("matmul result failed verification", zap.Int("m", m), zap.Int("k", k), zap.Int("n", n))
			}
			resp.Verified = &ok
		}
		writeJSON(w, resp)
	}
}

// DeviceHandler reports the active backend and device.
func DeviceHandler(dev Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, struct {
			Backend string                `json:"backend"`
			Device  matrixmath.DeviceInfo `json:"device"`
		}{dev.Backend(), dev.Info()})
	}
}

// maxBytesPerElement bounds the JSON text of one float element, sign, exponent
// and separator included.
const maxBytesPerElement = 32

// bodyLimit is the largest request body accepted when each of the two inputs
// may hold maxElements values.
func bodyLimit(maxElements int) int64 {
	return 2*int64(maxElements)*maxBytesPerElement + 4096
}

// decodeBody decodes r's JSON body into v, reading at most bodyLimit bytes.
func decodeBody(w http.ResponseWriter, r *http.Request, maxElements int, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(maxElements))
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, err)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func requestStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, matrixmath.ErrDimensionMismatch),
		errors.Is(err, matrixmath.ErrInvalidDimension),
		errors.Is(err, gpu.ErrSizeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, matrixmath.ErrDeviceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
