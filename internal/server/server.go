// Package server exposes downloads over HTTP: a form to start one, a status
// page that refreshes until the download completes, and the finished zip.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/efolder-express/internal/model"
)

// Starter begins downloads.
type Starter interface {
	BeginDownload(ctx context.Context, fileNumber string) (string, error)
}

// Reader loads downloads with their documents.
type Reader interface {
	GetDownload(ctx context.Context, requestID string) (*model.Download, error)
}

// Archiver writes a completed download's zip to a file in dir.
type Archiver interface {
	BuildFile(ctx context.Context, dl *model.Download, dir string) (string, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Starter  Starter
	Reader   Reader
	Archiver Archiver
	// Ready reports whether the service can serve archives; nil means always.
	Ready func() bool
}

// Options tune the listener.
type Options struct {
	Address       string
	ArchiveDir    string
	ShutdownGrace time.Duration
}

// Server hosts the HTTP handlers.
type Server struct {
	opts   Options
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// New builds a Server and its routes.
func New(opts Options, deps Deps, logger *slog.Logger) *Server {
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = os.TempDir()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	s := &Server{opts: opts, deps: deps, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(Metrics())

	r.Get("/", s.handleIndex)
	r.Post("/download", s.handleBeginDownload)
	r.Post("/download/", s.handleBeginDownload)
	r.Route("/download/{requestID}", func(r chi.Router) {
		r.Get("/", s.handleStatusPage)
		r.Get("/status.json", s.handleStatusJSON)
		r.Get("/zip/", s.handleZip)
	})
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.opts.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
