package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/matrix-math/internal/gpu"
	"github.com/fxnlabs/matrix-math/pkg/matrixmath"
	"github.com/urfave/cli/v2"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the selected backend and device",
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			dev, err := matrixmath.Open(matrixmath.Options{
				Backend:   cfg.Device.Backend,
				Dimension: cfg.Device.Dimension,
				Logger:    appLogger(c),
			})
			if err != nil {
				return cli.Exit(err.Error(), matrixmath.StatusCode(err))
			}
			defer dev.Close()

			w := c.App.Writer
			fmt.Fprintln(w, figure.NewFigure("matrixmath", "", true).String())

			info := dev.Info()
			fmt.Fprintf(w, "Backend:            %s\n", dev.Backend())
			fmt.Fprintf(w, "Device:             %s\n", info.Name)
			fmt.Fprintf(w, "Compute capability: %s\n", info.ComputeCapability)
			fmt.Fprintf(w, "Memory:             %s total, %s available\n",
				humanize.IBytes(uint64(info.TotalMemory)), humanize.IBytes(uint64(info.AvailableMemory)))
			fmt.Fprintf(w, "Driver:             %s\n", info.DriverVersion)
			if info.CUDAVersion != "" {
				fmt.Fprintf(w, "CUDA runtime:       %s\n", info.CUDAVersion)
			}
			fmt.Fprintf(w, "CUDA available:     %t\n", gpu.NewCUDABackend(nil).IsAvailable())
			fmt.Fprintf(w, "Default dimension:  %s elements (%s per buffer set)\n",
				humanize.Comma(int64(dev.Dimension())), humanize.IBytes(uint64(dev.Dimension())*4*3))
			return nil
		},
	}
}
