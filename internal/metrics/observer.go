package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NodePath81/hyperspeed/internal/engine"
)

// EngineObserver exports benchmark engine activity to Prometheus.
type EngineObserver struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	throughput   *prometheus.GaugeVec
	phaseBps     *prometheus.GaugeVec
	phaseBytes   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	jitterMax    *prometheus.GaugeVec
}

var _ engine.Observer = (*EngineObserver)(nil)

// NewEngineObserver registers engine metrics on reg.
func NewEngineObserver(reg prometheus.Registerer) *EngineObserver {
	o := &EngineObserver{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Benchmark runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Benchmark runs finished by final state.",
		}, []string{"state"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_bits_per_second",
			Help:      "Most recent in-phase throughput report.",
		}, []string{"direction"}),
		phaseBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_result_bits_per_second",
			Help:      "Throughput of the last completed phase.",
		}, []string{"direction"}),
		phaseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_bytes_total",
			Help:      "Bytes moved by completed benchmark phases.",
		}, []string{"direction"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latency_seconds",
			Help:      "Round-trip probe latency by phase.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"phase"}),
		jitterMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jitter_max_seconds",
			Help:      "Run-wide maximum sliding-window jitter at phase end.",
		}, []string{"direction"}),
	}
	reg.MustRegister(
		o.runsStarted,
		o.runsFinished,
		o.throughput,
		o.phaseBps,
		o.phaseBytes,
		o.latency,
		o.jitterMax,
	)
	return o
}

func (o *EngineObserver) RunStarted(string) {
	o.runsStarted.Inc()
}

func (o *EngineObserver) Throughput(dir engine.Direction, bps float64) {
	o.throughput.WithLabelValues(dir.String()).Set(bps)
}

func (o *EngineObserver) LatencySample(phase engine.Phase, rtt time.Duration) {
	o.latency.WithLabelValues(phase.String()).Observe(rtt.Seconds())
}

func (o *EngineObserver) PhaseCompleted(r engine.PhaseResult) {
	dir := r.Direction.String()
	o.phaseBps.WithLabelValues(dir).Set(r.BitsPerSecond)
	o.phaseBytes.WithLabelValues(dir).Add(float64(r.Bytes))
	o.jitterMax.WithLabelValues(dir).Set(r.JitterMax.Seconds())
	o.throughput.WithLabelValues(dir).Set(0)
}

func (o *EngineObserver) RunFinished(_ string, state engine.State, _ error) {
	o.runsFinished.WithLabelValues(state.String()).Inc()
}
