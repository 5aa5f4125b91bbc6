package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fxnlabs/matrix-math/internal/config"
	"github.com/fxnlabs/matrix-math/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if log, ok := app.Metadata["logger"].(*zap.Logger); ok {
			log.Fatal("failed to run app", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var configPath string
	var backend string

	return &cli.App{
		Name:  "matrixmath",
		Usage: "Elementwise matrix arithmetic on a GPU, with CPU fallback",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       config.DefaultConfigPath,
				Usage:       "Load configuration from `FILE`",
				EnvVars:     []string{"MATRIXMATH_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "Override device.backend (auto, cpu or cuda)",
				EnvVars:     []string{"MATRIXMATH_BACKEND"},
				Destination: &backend,
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(configPath)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				cfg = config.Default()
			case err != nil:
				return err
			}
			if backend != "" {
				cfg.Device.Backend = backend
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
			if err != nil {
				return err
			}
			c.App.Metadata["config"] = cfg
			c.App.Metadata["configPath"] = configPath
			c.App.Metadata["logger"] = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if log, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
				_ = log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			infoCommand(),
			computeCommand(),
			serveCommand(),
		},
	}
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func appLogger(c *cli.Context) *zap.Logger {
	return c.App.Metadata["logger"].(*zap.Logger)
}
