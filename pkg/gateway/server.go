package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/harun/toolhost/pkg/tool"
)

// Registry is the view of the tool registry the gateway reads.
type Registry interface {
	Get(name string) (tool.Tool, bool)
	Healthy() []tool.Tool
	IsHealthy(name string) bool
	Status(name string) (tool.Status, bool)
	AllStatus() []tool.Status
}

// Executor runs tool calls.
type Executor interface {
	Execute(ctx context.Context, toolName, method string, params map[string]any, timeout time.Duration) tool.Result
}

// Reloader replaces a single tool from its source.
type Reloader interface {
	ReloadTool(ctx context.Context, name string) error
}

// Sweeper runs an on-demand health sweep.
type Sweeper interface {
	RunNow(ctx context.Context) map[string]bool
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	AuthToken         string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RequestsPerMinute int
	MaxConcurrent     int

	Registry Registry
	Executor Executor
	// Reloader and Sweeper are optional; their routes answer 501 without them.
	Reloader Reloader
	Sweeper  Sweeper
	Metrics  http.Handler

	Logger zerolog.Logger
}

// Server is the HTTP front of the tool host.
type Server struct {
	addr      string
	authToken string
	registry  Registry
	executor  Executor
	reloader  Reloader
	sweeper   Sweeper
	metrics   http.Handler
	limiter   *RateLimiter
	mcp       *mcpEndpoints
	handler   http.Handler
	logger    zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	s := &Server{
		addr:      net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		authToken: cfg.AuthToken,
		registry:  cfg.Registry,
		executor:  cfg.Executor,
		reloader:  cfg.Reloader,
		sweeper:   cfg.Sweeper,
		metrics:   cfg.Metrics,
		limiter:   NewRateLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		mcp:       newMCPEndpoints(),
		logger:    cfg.Logger.With().Str("component", "gateway").Logger(),
	}
	s.handler = s.routes()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(s.authToken))

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)

			r.Get("/api/tools", s.handleListTools)
			r.Get("/api/tools/{tool}", s.handleGetTool)
			r.Post("/api/tools/{tool}/{method}", s.handleExecute)
			r.Post("/api/reload/{tool}", s.handleReload)
			r.Post("/api/health-check", s.handleHealthCheck)
		})

		r.With(s.limiter.StreamMiddleware).Handle("/mcp/{tool}", s.mcpHandler())
	})

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address once Start has returned, or the
// configured one before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests until
// ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	s.logger.Info().Msg("Shutting down gateway server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("Gateway server stopped")
	return nil
}
