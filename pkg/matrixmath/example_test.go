package matrixmath_test

import (
	"context"
	"fmt"

	"github.com/fxnlabs/matrix-math/pkg/matrixmath"
)

func Example() {
	dev, err := matrixmath.Open(matrixmath.Options{Backend: "cpu"})
	if err != nil {
		panic(err)
	}
	defer dev.Close()

	bufs, err := dev.AllocHost(3)
	if err != nil {
		panic(err)
	}
	defer bufs.Free()

	copy(bufs.A, []float32{1, 2, 3})
	copy(bufs.B, []float32{4, 5, 6})

	ctx := context.Background()
	for _, op := range []func(context.Context, *matrixmath.HostBuffers) error{dev.Add, dev.Sub, dev.Mul} {
		if err := op(ctx, bufs); err != nil {
			panic(err)
		}
		fmt.Println(bufs.C)
	}
	// Output:
	// [5 7 9]
	// [-3 -3 -3]
	// [4 10 18]
}
