package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/moments/internal/config"
	httpAdapter "github.com/aretw0/moments/pkg/adapters/http"
	"github.com/aretw0/moments/pkg/observability"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the final saves and in-flight requests on exit.
const shutdownTimeout = 10 * time.Second

// ServeOptions configures Serve.
type ServeOptions struct {
	Config  config.Config
	Logger  *slog.Logger
	Debug   bool
	Factory ports.EngineFactory
	// Ready receives the bound address once the listener is open, if set.
	Ready chan<- string
}

// Serve runs the HTTP bridge until ctx is done, then saves and disposes every session.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg, logger := opts.Config, opts.Logger

	backend, err := OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	hooks := observability.NewMetrics(reg).Hooks()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if opts.Debug {
		hooks = hooks.Merge(DebugHooks(logger))
	}

	editor, err := NewEditor(cfg, backend, opts.Factory, logger, hooks)
	if err != nil {
		return err
	}
	api := httpAdapter.NewServer(editor, httpAdapter.WithLogger(logger))

	r := chi.NewRouter()
	if cfg.Server.Metrics {
		r.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Mount("/", api.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
		close(opts.Ready)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Moments server listening", "address", ln.Addr().String(), "storage", cfg.Storage.Backend)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("Shutting down", "sessions", len(editor.Sessions()))
		api.Close(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete: %w", err)
		}
		return nil
	})
	return g.Wait()
}
