package matrixmath

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementwiseOps(t *testing.T) {
	ctx := context.Background()
	dev := openCPU(t)

	h, err := dev.AllocHost(3)
	require.NoError(t, err)
	defer h.Free()

	copy(h.A, []float32{1, 2, 3})
	copy(h.B, []float32{4, 5, 6})

	testCases := []struct {
		name     string
		run      func(context.Context, *HostBuffers) error
		expected []float32
	}{
		{"add", dev.Add, []float32{5, 7, 9}},
		{"sub", dev.Sub, []float32{-3, -3, -3}},
		{"mul", dev.Mul, []float32{4, 10, 18}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.run(ctx, h))
			assert.Equal(t, tc.expected, h.C)
			// inputs are not modified
			assert.Equal(t, []float32{1, 2, 3}, h.A)
			assert.Equal(t, []float32{4, 5, 6}, h.B)
		})
	}
}

func TestApply_ParsedOp(t *testing.T) {
	dev := openCPU(t)

	h, err := dev.AllocHost(2)
	require.NoError(t, err)
	defer h.Free()
	copy(h.A, []float32{6, 8})
	copy(h.B, []float32{2, 4})

	op, err := ParseOp("sub")
	require.NoError(t, err)
	require.NoError(t, dev.Apply(context.Background(), op, h))
	assert.Equal(t, []float32{4, 4}, h.C)
}

func TestApply_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("nil buffers", func(t *testing.T) {
		dev := openCPU(t)
		assert.ErrorIs(t, dev.Add(ctx, nil), ErrNilBuffers)
	})

	t.Run("freed buffers", func(t *testing.T) {
		dev := openCPU(t)
		h, err := dev.AllocHost(3)
		require.NoError(t, err)
		require.NoError(t, h.Free())
		assert.ErrorIs(t, dev.Sub(ctx, h), ErrBufferFreed)
	})

	t.Run("closed device", func(t *testing.T) {
		dev := openCPU(t)
		h, err := dev.AllocHost(3)
		require.NoError(t, err)
		require.NoError(t, dev.Close())
		assert.ErrorIs(t, dev.Mul(ctx, h), ErrDeviceClosed)
	})

	t.Run("resliced buffer", func(t *testing.T) {
		dev := openCPU(t)
		h, err := dev.AllocHost(3)
		require.NoError(t, err)
		defer h.Free()
		h.B = h.B[:2]
		assert.ErrorIs(t, dev.Add(ctx, h), ErrDimensionMismatch)
	})

	t.Run("canceled context", func(t *testing.T) {
		dev := openCPU(t)
		h, err := dev.AllocHost(3)
		require.NoError(t, err)
		defer h.Free()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err = dev.Add(cctx, h)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusCanceled, StatusCode(err))
	})
}

func TestCompute(t *testing.T) {
	ctx := context.Background()
	dev := openCPU(t)

	c, err := dev.Compute(ctx, OpMul, []float32{1, 2, 3}, []float32{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 10, 18}, c)
	// the temporary set is released
	assert.Equal(t, 0, dev.Live())

	_, err = dev.Compute(ctx, OpAdd, []float32{1, 2}, []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = dev.Compute(ctx, OpAdd, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestMatMul(t *testing.T) {
	ctx := context.Background()
	dev := openCPU(t)

	c, err := dev.MatMul(ctx, []float32{1, 2, 3, 4}, []float32{5, 6, 7, 8}, 2, 2, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{19, 22, 43, 50}, c, 1e-5)

	_, err = dev.MatMul(ctx, []float32{1, 2, 3}, []float32{5, 6, 7, 8}, 2, 2, 2)
	assert.Error(t, err)

	_, err = dev.MatMul(ctx, nil, nil, 0, 2, 2)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	require.NoError(t, dev.Close())
	_, err = dev.MatMul(ctx, []float32{1}, []float32{1}, 1, 1, 1)
	assert.ErrorIs(t, err, ErrDeviceClosed)
}

func TestConcurrentBufferSets(t *testing.T) {
	ctx := context.Background()
	dev := openCPU(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			h, err := dev.AllocHost(4)
			if !assert.NoError(t, err) {
				return
			}
			defer h.Free()
			for i := range h.A {
				h.A[i] = float32(w)
				h.B[i] = float32(i)
			}
			for i := 0; i < 20; i++ {
				assert.NoError(t, dev.Add(ctx, h))
			}
			assert.Equal(t, []float32{float32(w), float32(w + 1), float32(w + 2), float32(w + 3)}, h.C)
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 0, dev.Live())
}
