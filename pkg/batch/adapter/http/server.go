package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// NewServer creates the HTTP server for handler.
func NewServer(cfg config.HTTPConfig, handler *Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ServerParams defines the dependencies of RegisterServer.
type ServerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Handler   *Handler
}

// RegisterServer starts the server with the application when surfin.http.enabled is
// set and shuts it down gracefully on stop.
func RegisterServer(p ServerParams) {
	httpCfg := p.Cfg.Surfin.HTTP
	if !httpCfg.Enabled {
		return
	}
	server := NewServer(httpCfg, p.Handler)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			logger.Infof("HTTP API listening on %s", ln.Addr())
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("HTTP server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			timeout := httpCfg.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

// Module provides the Handler and runs the server. It requires the usecase module and a
// *prometheus.Registry.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Provide(func(registry *prometheus.Registry) prometheus.Gatherer { return registry }),
	fx.Invoke(RegisterServer),
)
