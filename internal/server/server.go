// Package server implements the speed-test HTTP endpoints a benchmark
// runs against.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"github.com/NodePath81/hyperspeed/internal/config"
	"github.com/NodePath81/hyperspeed/internal/control"
	"github.com/NodePath81/hyperspeed/internal/geoip"
	"github.com/NodePath81/hyperspeed/internal/metrics"
	"github.com/NodePath81/hyperspeed/internal/transport"
	"github.com/NodePath81/hyperspeed/internal/util"
)

const (
	maxUploadBytes    = 64 << 20
	pacedWriteSize    = 64 << 10
	readHeaderTimeout = 10 * time.Second
)

// Deps are the optional collaborators of a Server. Nil fields disable the
// matching feature.
type Deps struct {
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	GeoIP    *geoip.Resolver
	Control  *control.Handler
}

// Server serves /ping, /download, /upload and the auxiliary endpoints.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	logger  util.Logger
	router  *gin.Engine
	payload []byte

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func New(cfg config.ServerConfig, deps Deps, logger util.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	chunk := cfg.DownloadChunkBytes
	if chunk <= 0 {
		chunk = 1 << 20
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		router:  gin.New(),
		payload: transport.Payload(chunk),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET(transport.PathPing, s.handlePing)
	s.router.HEAD(transport.PathPing, s.handlePing)
	s.router.GET(transport.PathDownload, s.handleDownload)
	s.router.POST(transport.PathUpload, s.handleUpload)
	s.router.GET(transport.PathIdentity, s.handleIdentity)
	if s.deps.Control != nil {
		s.router.GET(transport.PathControl, gin.WrapH(s.deps.Control))
		s.router.GET(transport.PathSessions, gin.WrapF(s.deps.Control.ServeSessions))
	}
	if s.deps.Registry != nil {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler(s.deps.Registry)))
	}
	if dir := s.cfg.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.router.NoRoute(gin.WrapH(http.FileServer(http.Dir(dir))))
		} else {
			s.logger.Warn("static directory unavailable", "dir", dir, "error", err)
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves in the background
// until ctx is done or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := util.NetJoin(s.cfg.BindAddr, s.cfg.BindPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("speed-test server error", "error", err)
		}
	}()
	s.logger.Info("speed-test server started", "addr", ln.Addr().String(),
		"max_connections", s.cfg.MaxConnections, "download_chunk", util.FormatBytes(float64(len(s.payload))))
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"duration", time.Since(start))
	}
}
