// Package server wires the LEGACORE control plane together.
//
// Usage:
//
//	cfg, _ := config.Load()
//	srv, err := server.New(ctx, cfg)
//	defer srv.Close(ctx)
//	err = srv.ListenAndServe(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/legacore/legacore/control-plane/internal/analytics"
	"github.com/legacore/legacore/control-plane/internal/api"
	"github.com/legacore/legacore/control-plane/internal/api/handlers"
	"github.com/legacore/legacore/control-plane/internal/catalog"
	"github.com/legacore/legacore/control-plane/internal/config"
	"github.com/legacore/legacore/control-plane/internal/executor"
	"github.com/legacore/legacore/control-plane/internal/retention"
	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/internal/store"
	"github.com/legacore/legacore/control-plane/internal/telemetry"
	"github.com/legacore/legacore/control-plane/internal/tools"
)

// Server holds the initialized control plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Store    store.Store
	Catalog  *catalog.Catalog
	Router   *router.Router
	Executor *executor.Executor
	Tracker  *analytics.Tracker
	Janitor  *retention.Janitor
	Config   *config.Config

	shutdownTelemetry telemetry.Shutdown
}

// New initializes every control plane component from cfg.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	cat, err := catalog.Load(cfg.AgentsDir)
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("load agent catalog: %w", err)
	}

	dataStore, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("driver", cfg.Store.Driver).Msg("Store initialized")

	mr := router.New(cfg.Router, cfg.Credentials)
	tracker := analytics.NewTracker(analyticsSink(cfg))
	exec := executor.NewExecutor(dataStore, cat, mr, tools.NewRegistry(), executor.WithTracker(tracker))

	h := handlers.New(dataStore, cat, mr, exec)

	return &Server{
		Handler:           api.NewRouter(cfg, h),
		Store:             dataStore,
		Catalog:           cat,
		Router:            mr,
		Executor:          exec,
		Tracker:           tracker,
		Janitor:           newJanitor(cfg, dataStore),
		Config:            cfg,
		shutdownTelemetry: shutdown,
	}, nil
}

func analyticsSink(cfg *config.Config) analytics.Sink {
	if cfg.Analytics.SegmentWriteKey == "" {
		return analytics.LogSink{}
	}
	log.Info().Msg("Segment analytics enabled")
	return analytics.NewSegmentSink(cfg.Analytics.SegmentEndpoint, cfg.Analytics.SegmentWriteKey, cfg.Version)
}

func newJanitor(cfg *config.Config, s store.ActivityStore) *retention.Janitor {
	rc := cfg.Retention
	if rc.ActivityTTL <= 0 {
		return nil
	}
	var opts []retention.Option
	if rc.Archive {
		opts = append(opts, retention.WithArchiver(retention.NewLocalFileArchiver(rc.ArchiveDir, rc.Compress)))
	}
	return retention.NewJanitor(s, rc.ActivityTTL, rc.Interval, opts...)
}

// WriteTimeout bounds a response by the slowest agent execution: two router
// calls (the tool round) at the router's worst case, plus headroom for the
// store and tool work.
func WriteTimeout(cfg *config.Config) time.Duration {
	return 2*cfg.Router.MaxLatency() + 30*time.Second
}

// ListenAndServe serves HTTP until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.Config.Addr(),
		Handler:      s.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: WriteTimeout(s.Config),
		IdleTimeout:  120 * time.Second,
	}

	if s.Janitor != nil {
		go s.Janitor.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("LEGACORE control plane listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close flushes analytics and telemetry and closes the store.
func (s *Server) Close(ctx context.Context) error {
	s.Tracker.Flush()
	var errs []error
	if s.shutdownTelemetry != nil {
		if err := s.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
