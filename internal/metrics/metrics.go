// Package metrics exports server traffic and benchmark engine activity to
// Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hyperspeed"

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type directionBytes struct {
	total atomic.Uint64
	last  uint64
	rate  uint64
}

// Metrics counts speed-test server traffic. Byte totals are updated
// lock-free by handlers; per-second rates are derived once a second by Start.
type Metrics struct {
	mu        sync.Mutex
	download  directionBytes
	upload    directionBytes
	streams   *prometheus.GaugeVec
	requests  *prometheus.CounterVec
	sessions  prometheus.Gauge
	startTime time.Time
}

// NewMetrics registers the server collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		streams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Transfer streams currently being served.",
		}, []string{"direction"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by endpoint.",
		}, []string{"endpoint"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_sessions",
			Help:      "Connected control channel sessions.",
		}),
		startTime: time.Now(),
	}
	reg.MustRegister(
		m.streams,
		m.requests,
		m.sessions,
		directionFunc(true, "bytes_total", "Bytes moved by the server.", "download",
			func() float64 { return float64(m.download.total.Load()) }),
		directionFunc(true, "bytes_total", "Bytes moved by the server.", "upload",
			func() float64 { return float64(m.upload.total.Load()) }),
		directionFunc(false, "bytes_per_second", "Bytes moved during the last full second.", "download",
			func() float64 { return float64(m.Rates().DownloadBps) / 8 }),
		directionFunc(false, "bytes_per_second", "Bytes moved during the last full second.", "upload",
			func() float64 { return float64(m.Rates().UploadBps) / 8 }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started.",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
	)
	return m
}

func directionFunc(counter bool, name, help, direction string, fn func() float64) prometheus.Collector {
	labels := prometheus.Labels{"direction": direction}
	if counter {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, fn)
	}
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn)
}

// Start updates per-second rates until ctxDone is closed.
func (m *Metrics) Start(ctxDone <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctxDone:
				return
			case <-ticker.C:
				m.updatePerSecond()
			}
		}
	}()
}

func (m *Metrics) updatePerSecond() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range []*directionBytes{&m.download, &m.upload} {
		current := d.total.Load()
		d.rate = current - d.last
		d.last = current
	}
}

// Rates is the per-second throughput observed by the server, in bits/sec.
type Rates struct {
	DownloadBps uint64
	UploadBps   uint64
}

func (m *Metrics) Rates() Rates {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Rates{DownloadBps: m.download.rate * 8, UploadBps: m.upload.rate * 8}
}

func (m *Metrics) AddDownloadBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.download.total.Add(uint64(n))
}

func (m *Metrics) AddUploadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.upload.total.Add(uint64(n))
}

// StreamStarted marks a transfer stream active and returns its release func.
func (m *Metrics) StreamStarted(direction string) func() {
	if m == nil {
		return func() {}
	}
	g := m.streams.WithLabelValues(direction)
	g.Inc()
	return g.Dec
}

func (m *Metrics) Request(endpoint string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Totals returns the cumulative bytes served and received.
func (m *Metrics) Totals() (download, upload uint64) {
	return m.download.total.Load(), m.upload.total.Load()
}
