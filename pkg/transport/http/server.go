package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kikaiken/kikaiken/pkg/transport"
)

// ServerConfig holds the listener, limits and route guards of a Server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	// MetricsPath is where Prometheus scrapes; empty turns it off.
	MetricsPath string

	// Auth guards everything but the health checks and metrics. Admin additionally
	// guards key management and commands.
	Auth  func(http.Handler) http.Handler
	Admin func(http.Handler) http.Handler
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     1 << 20,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Logger:          slog.Default(),
		MetricsPath:     "/metrics",
	}
}

type ServerOption func(*ServerConfig)

func WithAddr(addr string) ServerOption {
	return func(c *ServerConfig) { c.Addr = addr }
}

func WithMaxBodySize(n int64) ServerOption {
	return func(c *ServerConfig) { c.MaxBodySize = n }
}

// WithTimeouts sets the http.Server read and write timeouts. Zero disables
// one, which long streams may need.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(c *ServerConfig) { c.ReadTimeout, c.WriteTimeout = read, write }
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.ShutdownTimeout = d }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}

func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath = path }
}

func WithAuth(mw func(http.Handler) http.Handler) ServerOption {
	return func(c *ServerConfig) { c.Auth = mw }
}

func WithAdmin(mw func(http.Handler) http.Handler) ServerOption {
	return func(c *ServerConfig) { c.Admin = mw }
}

// Server runs the kikaiken HTTP API. Streams still open at shutdown are
// cancelled so that their handlers send talk.cancelled and return.
type Server struct {
	config     ServerConfig
	adapter    *Adapter
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires creator and backends behind the adapter's routes. Every
// talk runs through recovery, request ID and logging middleware.
func NewServer(creator transport.ReplyCreator, backends Backends, opts ...ServerOption) *Server {
	cfg := DefaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	adapter := NewAdapter(creator, backends,
		Config{MaxBodySize: cfg.MaxBodySize, Admin: cfg.Admin},
		transport.Recovery(), transport.RequestID(), transport.Logging(cfg.Logger))

	routes := adapter.Handler()
	guarded := routes
	if cfg.Auth != nil {
		guarded = cfg.Auth(routes)
	}

	mux := http.NewServeMux()
	mux.Handle("/", guarded)
	for _, health := range []string{"GET /healthz", "GET /readyz"} {
		mux.Handle(health, routes)
	}
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	s := &Server{
		config:  cfg,
		adapter: adapter,
		logger:  cfg.Logger,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	s.httpServer.RegisterOnShutdown(func() {
		if n := adapter.InFlight().CancelAll(); n > 0 {
			s.logger.Info("cancelled open streams", "count", n)
		}
	})
	return s
}

// Handler is the root handler, for tests that mount it on httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs until SIGINT or SIGTERM.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run listens on the configured address and serves until ctx is done,
// then drains within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

// ServeOn serves on ln until a signal arrives.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	stopped := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(stopped)
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return s.drain()
		case <-stopped:
			// Serve failed or Shutdown was called directly.
			return nil
		}
	})
	return g.Wait()
}

func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("draining connections", "timeout", s.config.ShutdownTimeout)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown incomplete", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown stops the server, waiting for handlers until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
