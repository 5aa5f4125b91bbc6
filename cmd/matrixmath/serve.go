package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/fxnlabs/matrix-math/internal/compute"
	"github.com/fxnlabs/matrix-math/internal/config"
	"github.com/fxnlabs/matrix-math/pkg/matrixmath"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the compute API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Override server.listenAddress"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if addr := c.String("listen"); addr != "" {
				cfg.Server.ListenAddress = addr
			}
			app := fx.New(serveOptions(cfg, appLogger(c)), fx.Invoke(func(*http.Server) {}))
			if err := app.Err(); err != nil {
				return cli.Exit(err.Error(), matrixmath.StatusCode(err))
			}
			app.Run()
			return nil
		},
	}
}

// serveOptions wires the device, the HTTP mux and the server. The device is
// closed when the app stops.
func serveOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.StopTimeout(cfg.Server.ShutdownTimeout),
		fx.Provide(
			newDevice,
			newMux,
			newHTTPServer,
		),
	)
}

func newDevice(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*matrixmath.Device, error) {
	dev, err := matrixmath.Open(matrixmath.Options{
		Backend:   cfg.Device.Backend,
		Dimension: cfg.Device.Dimension,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return dev.Close()
		},
	})
	return dev, nil
}

func newMux(cfg *config.Config, log *zap.Logger, dev *matrixmath.Device) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/v1/", compute.NewHandler(log.Named("compute"), dev, cfg.Server.MaxElements))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if dev.Closed() {
			http.Error(w, matrixmath.ErrDeviceClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, mux *http.ServeMux) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
