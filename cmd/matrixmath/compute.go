package main

import (
	"fmt"
	"time"

	"github.com/fxnlabs/matrix-math/pkg/matrixmath"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func computeCommand() *cli.Command {
	return &cli.Command{
		Name:  "compute",
		Usage: "Run one elementwise operation and print C",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "op", Usage: "add, sub or mul", Required: true},
			&cli.Float64SliceFlag{Name: "a", Usage: "comma separated values of A", Required: true},
			&cli.Float64SliceFlag{Name: "b", Usage: "comma separated values of B", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)

			op, err := matrixmath.ParseOp(c.String("op"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			a := toFloat32(c.Float64Slice("a"))
			b := toFloat32(c.Float64Slice("b"))

			dev, err := matrixmath.Open(matrixmath.Options{
				Backend:   cfg.Device.Backend,
				Dimension: cfg.Device.Dimension,
				Logger:    log,
			})
			if err != nil {
				return cli.Exit(err.Error(), matrixmath.StatusCode(err))
			}
			defer dev.Close()

			start := time.Now()
			out, err := dev.Compute(c.Context, op, a, b)
			if err != nil {
				return cli.Exit(err.Error(), matrixmath.StatusCode(err))
			}
			log.Debug("Computed", zap.Stringer("op", op), zap.Int("n", len(out)), zap.Duration("elapsed", time.Since(start)))

			fmt.Fprintln(c.App.Writer, out)
			return nil
		},
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
