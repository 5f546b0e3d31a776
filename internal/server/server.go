// Package server serves the lineage service as a JSON API.
//
// The server holds one loaded registry snapshot at a time. In watch mode the
// artifact files are watched and every change loads a fresh registry, which
// replaces the current snapshot only if it loads successfully. Requests in
// flight keep the snapshot they started with.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/dbtlineage/internal/config"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
	"github.com/leapstack-labs/dbtlineage/internal/service"
)

// DefaultDebounce is how long the watcher waits for artifact writes to settle
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Config config.ServerConfig

	// Registry is used to load a fresh registry on reload.
	Registry registry.Options

	Logger   *slog.Logger
	Debounce time.Duration
}

type snapshot struct {
	reg *registry.Registry
	svc *service.Service
}

// Server is the lineage API server.
type Server struct {
	opts    Options
	logger  *slog.Logger
	current atomic.Pointer[snapshot]
	reloads atomic.Int64
	handler http.Handler
}

// New creates a server over a loaded registry.
func New(reg *registry.Registry, opts Options) *Server {
	config.ApplyServerDefaults(&opts.Config)
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{opts: opts, logger: logger}
	s.swap(reg)
	s.handler = s.routes()
	return s
}

func (s *Server) swap(reg *registry.Registry) {
	s.current.Store(&snapshot{
		reg: reg,
		svc: service.New(reg, service.WithLogger(s.logger)),
	})
}

func (s *Server) snapshot() *snapshot {
	return s.current.Load()
}

// Service returns the service of the current snapshot.
func (s *Server) Service() *service.Service {
	return s.snapshot().svc
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Reloads returns the number of successful reloads.
func (s *Server) Reloads() int64 {
	return s.reloads.Load()
}

// Reload loads a fresh registry from the configured artifacts and swaps it
// in. On failure the current snapshot stays in place.
func (s *Server) Reload(ctx context.Context) error {
	start := time.Now()
	reg := registry.New(s.opts.Registry)
	if err := reg.Load(ctx); err != nil {
		s.logger.Error("reload failed, keeping previous snapshot", "error", err)
		return fmt.Errorf("reload: %w", err)
	}
	s.swap(reg)
	s.reloads.Add(1)

	id, _ := reg.SnapshotID()
	s.logger.Info("artifacts reloaded", "snapshot", id, "duration", time.Since(start))
	return nil
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Config.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting lineage API", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.opts.Config.Watch {
		eg.Go(func() error {
			return s.watchArtifacts(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down lineage API")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
