package compute

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// FreivaldsVerify performs Freivalds' algorithm to probabilistically verify that C = A * B
// The algorithm has a false positive rate of at most 1/2^k where k is the number of iterations
func FreivaldsVerify(a, b, c mat.Matrix, iterations int) bool {
	n, m := a.Dims()
	mb, p := b.Dims()
	nc, pc := c.Dims()
	if m != mb || n != nc || p != pc {
		return false
	}

	var br, abr, cr mat.VecDense
	for i := 0; i < iterations; i++ {
		// binary random vector
		r := mat.NewVecDense(p, nil)
		for j := 0; j < p; j++ {
			r.SetVec(j, float64(rand.Intn(2)))
		}

		br.MulVec(b, r)
		abr.MulVec(a, &br)
		cr.MulVec(c, r)

		if !vectorsClose(&abr, &cr) {
			return false
		}
	}
	return true
}

// vectorsClose compares with a relative tolerance suited to float32 results.
func vectorsClose(x, y *mat.VecDense) bool {
	for i := 0; i < x.Len(); i++ {
		a, b := x.AtVec(i), y.AtVec(i)
		tol := 1e-4 * math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
		if math.Abs(a-b) > tol {
			return false
		}
	}
	return true
}
