package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NodePath81/hyperspeed/internal/config"
	"github.com/NodePath81/hyperspeed/internal/control"
	"github.com/NodePath81/hyperspeed/internal/engine"
	"github.com/NodePath81/hyperspeed/internal/geoip"
	"github.com/NodePath81/hyperspeed/internal/metrics"
	"github.com/NodePath81/hyperspeed/internal/server"
	"github.com/NodePath81/hyperspeed/internal/transport"
	"github.com/NodePath81/hyperspeed/internal/util"
)

// ErrTargetNotAllowed is returned when a control client names a remote
// target and the server does not permit it.
var ErrTargetNotAllowed = errors.New("remote targets are not allowed on this server")

// Runtime owns one configured server instance and everything it started.
type Runtime struct {
	cfg      config.Config
	ctx      context.Context
	cancel   context.CancelFunc
	logger   util.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	observer engine.Observer
	geo      *geoip.Resolver
	control  *control.Handler
	server   *server.Server
	wg       sync.WaitGroup
}

func NewRuntime(cfg config.Config, logger util.Logger) (*Runtime, error) {
	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		observer: engine.NopObserver{},
	}

	if cfg.Metrics.IsEnabled() {
		rt.registry = metrics.NewRegistry()
		rt.metrics = metrics.NewMetrics(rt.registry)
		rt.observer = metrics.NewEngineObserver(rt.registry)
	}
	if path := strings.TrimSpace(cfg.Server.GeoIPDB); path != "" {
		geo, err := geoip.Open(path)
		if err != nil {
			cancel()
			return nil, err
		}
		rt.geo = geo
	}

	var onSessions func(int)
	if rt.metrics != nil {
		onSessions = rt.metrics.SetSessions
	}
	rt.control = control.NewHandler(
		rt.newRunner,
		control.Authorizer{Token: cfg.Server.AuthToken, AllowedOrigins: cfg.Server.AllowedOrigins},
		control.NewSessionStore(onSessions),
		logger.With("component", "control"),
	)
	deps := server.Deps{Metrics: rt.metrics, Registry: rt.registry, GeoIP: rt.geo, Control: rt.control}
	rt.server = server.New(cfg.Server, deps, logger.With("component", "server"))
	return rt, nil
}

func (r *Runtime) Start() error {
	if err := r.server.Start(r.ctx); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.Start(r.ctx.Done())
	}
	return nil
}

func (r *Runtime) Stop() {
	r.cancel()
	if r.control != nil {
		r.control.Close()
	}
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.server.Shutdown(ctx)
		cancel()
	}
	r.wg.Wait()
	if err := r.geo.Close(); err != nil {
		r.logger.Error("geoip close failed", "error", err)
	}
}

// Addr returns the server's bound address.
func (r *Runtime) Addr() net.Addr {
	return r.server.Addr()
}

// newRunner builds an orchestrator for a control session. An empty host
// targets this server over loopback.
func (r *Runtime) newRunner(host string, port int) (control.Runner, error) {
	host = strings.TrimSpace(host)
	if host == "" || isLoopback(host) {
		host = "127.0.0.1"
		if port == 0 {
			port = r.boundPort()
		}
	} else if !r.cfg.Server.RemoteTargetsAllowed() {
		return nil, ErrTargetNotAllowed
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid target port %d", port)
	}
	tr := NewTransport(r.cfg.Client, host, port)
	o := engine.NewOrchestrator(tr, EngineOptions(r.cfg.Client, r.observer), r.logger.With("target", util.NetJoin(host, port)))
	return &runner{Orchestrator: o, tr: tr, wg: &r.wg}, nil
}

func (r *Runtime) boundPort() int {
	if addr, ok := r.server.Addr().(*net.TCPAddr); ok && addr != nil {
		return addr.Port
	}
	return r.cfg.Server.BindPort
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// runner releases the transport's idle connections once a run ends.
type runner struct {
	*engine.Orchestrator
	tr *transport.HTTP
	wg *sync.WaitGroup
}

func (r *runner) Run(ctx context.Context, req engine.Request, events chan<- engine.Event) (engine.Summary, error) {
	r.wg.Add(1)
	defer r.wg.Done()
	defer r.tr.Close()
	return r.Orchestrator.Run(ctx, req, events)
}

// NewTransport builds the HTTP transport a client run uses.
func NewTransport(cfg config.ClientConfig, host string, port int) *transport.HTTP {
	return transport.New(host, port, transport.Options{
		ProbeTimeout: cfg.ProbeTimeout.Duration(),
		SocketBuffer: cfg.SocketBufferBytes,
	})
}

// EngineOptions maps client configuration onto engine options.
func EngineOptions(cfg config.ClientConfig, observer engine.Observer) engine.Options {
	return engine.Options{
		IdleProbeCount:      cfg.IdleProbeCount,
		IdleProbeInterval:   cfg.IdleProbeInterval.Duration(),
		LoadedProbeInterval: cfg.LoadedProbeInterval.Duration(),
		ReportInterval:      cfg.ReportInterval.Duration(),
		SettleDelay:         cfg.SettleDelay.Duration(),
		UploadChunk:         transport.Payload(cfg.UploadChunkBytes),
		Observer:            observer,
	}
}
