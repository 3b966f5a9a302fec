// Package diagnostics serves Prometheus metrics and JSON snapshots of the
// processor and buffer manager over HTTP.
package diagnostics

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
	"github.com/tphakala/rtaudio/internal/observability"
)

const (
	componentDiagnostics = "diagnostics"

	// ShutdownTimeout bounds a graceful shutdown
	ShutdownTimeout = 5 * time.Second

	// hostCacheTTL is how long host snapshots are reused
	hostCacheTTL = 5 * time.Second
)

// Options wires the server to its data sources. Any of them may be nil;
// endpoints without a source answer 503.
type Options struct {
	Listen    string
	Processor *realtime.Processor
	Manager   *audiocore.AudioBufferManager
	Metrics   *observability.Metrics
}

// Server is the diagnostics HTTP endpoint
type Server struct {
	echo      *echo.Echo
	listen    string
	processor *realtime.Processor
	manager   *audiocore.AudioBufferManager
	metrics   *observability.Metrics

	cache      *cache.Cache
	hostMemory func() (MemoryInfo, error)

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewServer creates a server and registers its routes
func NewServer(opts Options) *Server {
	s := &Server{
		echo:       echo.New(),
		listen:     opts.Listen,
		processor:  opts.Processor,
		manager:    opts.Manager,
		metrics:    opts.Metrics,
		cache:      cache.New(hostCacheTTL, 0), // one key, overwritten on expiry
		hostMemory: readHostMemory,
		logger:     logging.Component("diagnostics", "server"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api/v1")
	api.GET("/stats", s.GetStats)
	api.GET("/latency", s.GetLatency)
	api.GET("/buffers", s.GetBuffers)
	api.GET("/system", s.GetSystem)
}

// Handler returns the HTTP handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.New(err).
			Component(componentDiagnostics).
			Category(errors.CategoryNetwork).
			Context("listen", s.listen).
			Build()
	}
	s.listener = listener
	s.echo.Listener = listener

	s.wg.Go(func() {
		s.logger.Info("diagnostics endpoint starting", "address", listener.Addr().String())
		if err := s.echo.Start(""); err != nil && err != http.ErrServerClosed {
			s.logger.Error("diagnostics server error", "error", err)
		}
	})
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server gracefully and waits for it to exit
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()

	if !started {
		return nil
	}

	s.logger.Info("stopping diagnostics server")
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return errors.New(err).
			Component(componentDiagnostics).
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown").
			Build()
	}
	return nil
}
