package compute

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// toDense validates that rows is a non-empty rectangular matrix and copies it
// into a mat.Dense.
func toDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("matrix is empty")
	}
	cols := len(rows[0])
	d := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		d.SetRow(i, row)
	}
	return d, nil
}

// flatten32 returns the row-major float32 copy of d.
func flatten32(d *mat.Dense) []float32 {
	r, c := d.Dims()
	out := make([]float32, 0, r*c)
	for i := 0; i < r; i++ {
		for _, v := range d.RawRowView(i) {
			out = append(out, float32(v))
		}
	}
	return out
}

// fromFlat32 wraps a row-major float32 result as an m×n Dense.
func fromFlat32(flat []float32, m, n int) *mat.Dense {
	data := make([]float64, len(flat))
	for i, v := range flat {
		data[i] = float64(v)
	}
	return mat.NewDense(m, n, data)
}

func rows(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, d)
	}
	return out
}
