package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Executors is the view of the executor cache the server needs.
// *subsystem.Registry implements it.
type Executors interface {
	LoadByPlace(ctx context.Context, placeID string) (*subsystem.Executor, bool)
	Peek(placeID string) (*subsystem.Executor, bool)
	RemoveByPlace(placeID string)
	Len() int
}

// HealthCheck is a named dependency probe reported by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Executors Executors
	Checks    []HealthCheck
	Gatherer  prometheus.Gatherer // nil serves the default registry
	Version   string
}

// Server is the operations HTTP server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	executors Executors
	checks    []HealthCheck
	gatherer  prometheus.Gatherer
	version   string

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// New creates a new API server. The server is not started until Start is
// called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Executors == nil {
		return nil, fmt.Errorf("executor registry is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		executors: deps.Executors,
		checks:    deps.Checks,
		gatherer:  deps.Gatherer,
		version:   deps.Version,
	}, nil
}

// Start binds the listener and serves in a background goroutine. A
// configured port of 0 picks a free port; see Addr.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", s.addr)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.Addr() == "" {
		return fmt.Errorf("api server not started")
	}
	return nil
}
