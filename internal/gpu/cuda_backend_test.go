//go:build cuda

package gpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInitializedCUDA(t *testing.T) *CUDABackend {
	t.Helper()
	backend := NewCUDABackend(zap.NewNop())
	if !backend.IsAvailable() {
		t.Skip("CUDA not available on this system")
	}
	require.NoError(t, backend.Initialize())
	t.Cleanup(func() { _ = backend.Cleanup() })
	return backend
}

func TestCUDABackend_Initialize(t *testing.T) {
	backend := newInitializedCUDA(t)
	assert.True(t, backend.initialized)

	info := backend.GetDeviceInfo()
	assert.NotEmpty(t, info.Name)
	assert.Greater(t, info.TotalMemory, int64(0))
	assert.NotEmpty(t, info.ComputeCapability)

	// Test double initialization (should be idempotent)
	assert.NoError(t, backend.Initialize())
}

func TestCUDABackend_Elementwise(t *testing.T) {
	backend := newInitializedCUDA(t)

	testCases := []struct {
		op       Op
		expected []float32
	}{
		{OpAdd, []float32{5, 7, 9}},
		{OpSub, []float32{-3, -3, -3}},
		{OpMul, []float32{4, 10, 18}},
	}

	for _, tc := range testCases {
		t.Run(tc.op.String(), func(t *testing.T) {
			da := upload(t, backend, []float32{1, 2, 3})
			db := upload(t, backend, []float32{4, 5, 6})
			dc, err := backend.Alloc(3)
			require.NoError(t, err)
			defer da.Free()
			defer db.Free()
			defer dc.Free()

			require.NoError(t, backend.Elementwise(tc.op, da, db, dc))

			got := make([]float32, 3)
			require.NoError(t, dc.Download(got))
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestCUDABackend_CleanupKeepsSharedContext(t *testing.T) {
	survivor := newInitializedCUDA(t)
	other := newInitializedCUDA(t)

	da := upload(t, survivor, []float32{1, 2, 3})
	db := upload(t, survivor, []float32{4, 5, 6})
	dc, err := survivor.Alloc(3)
	require.NoError(t, err)

	require.NoError(t, other.Cleanup())

	// Allocations made before the other backend cleaned up stay valid.
	require.NoError(t, survivor.Elementwise(OpMul, da, db, dc))
	got := make([]float32, 3)
	require.NoError(t, dc.Download(got))
	assert.Equal(t, []float32{4, 10, 18}, got)

	assert.NoError(t, da.Free())
	assert.NoError(t, db.Free())
	assert.NoError(t, dc.Free())
}

func TestCUDABackend_MatchesCPU(t *testing.T) {
	backend := newInitializedCUDA(t)
	cpu := newInitializedCPU(t)

	n := 1<<20 + 5
	a := make([]float32, n)
	b := make([]float32, n)
	for i := range a {
		a[i] = rand.Float32()
		b[i] = rand.Float32()
	}

	for _, op := range []Op{OpAdd, OpSub, OpMul} {
		gpuOut, cpuOut := make([]float32, n), make([]float32, n)
		for _, run := range []struct {
			backend Backend
			out     []float32
		}{{backend, gpuOut}, {cpu, cpuOut}} {
			da := upload(t, run.backend, a)
			db := upload(t, run.backend, b)
			dc, err := run.backend.Alloc(n)
			require.NoError(t, err)
			require.NoError(t, run.backend.Elementwise(op, da, db, dc))
			require.NoError(t, dc.Download(run.out))
			require.NoError(t, da.Free())
			require.NoError(t, db.Free())
			require.NoError(t, dc.Free())
		}
		assert.InDeltaSlice(t, cpuOut, gpuOut, 1e-5, op.String())
	}
}

func TestCUDABackend_MatrixMultiply(t *testing.T) {
	backend := newInitializedCUDA(t)

	c, err := backend.MatrixMultiply(
		[]float32{1, 2, 3, 4, 5, 6},
		[]float32{7, 8, 9, 10, 11, 12},
		2, 3, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{58, 64, 139, 154}, c, 1e-4)

	_, err = backend.MatrixMultiply([]float32{1}, []float32{1, 2}, 1, 1, 1)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestCUDABuffer_UseAfterFree(t *testing.T) {
	backend := newInitializedCUDA(t)

	buf, err := backend.Alloc(4)
	require.NoError(t, err)
	require.NoError(t, buf.Free())
	assert.ErrorIs(t, buf.Free(), ErrBufferReleased)
	assert.ErrorIs(t, buf.Upload(make([]float32, 4)), ErrBufferReleased)
}
