// Package api provides HTTP handlers and the server logic for mediavault.
//
// It exposes the platform webhook callback endpoint plus operational
// endpoints for health checks and manual summary runs. The API integrates
// with the router, summary, and platform modules.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/mediavault/internal/models"
	"github.com/user/mediavault/internal/router"
	"github.com/user/mediavault/internal/summary"
)

// DefaultAddr is the default API server listen address.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown of in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// CallbackParser authenticates and decodes a webhook delivery into message
// events.
type CallbackParser interface {
	ParseCallback(r *http.Request) ([]models.MessageEvent, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the webhook surface to the ingestion core.
type Server struct {
	addr      string
	parser    CallbackParser
	router    *router.Router
	summaries *summary.Writer
	startedAt time.Time
	httpSrv   *http.Server
}

// NewServer creates an API server over the given collaborators.
func NewServer(parser CallbackParser, rt *router.Router, summaries *summary.Writer, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	return &Server{
		addr:      cfg.Addr,
		parser:    parser,
		router:    rt,
		summaries: summaries,
		startedAt: time.Now(),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.callbackHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/summary", s.summaryHandler)
	mux.HandleFunc("/summary/run", s.summaryRunHandler)

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
