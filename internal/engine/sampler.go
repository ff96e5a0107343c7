package engine

import (
	"context"
	"sync"
	"time"

	"github.com/NodePath81/hyperspeed/internal/clock"
)

const (
	DefaultIdleProbeCount      = 20
	DefaultIdleProbeInterval   = 50 * time.Millisecond
	DefaultLoadedProbeInterval = 200 * time.Millisecond
)

// SampleFunc receives each successful loaded sample.
type SampleFunc func(Sample)

// Sampler probes latency at a fixed cadence while a transfer phase runs.
// One Sampler serves one phase; the JitterTracker is shared by every
// sampler of a run.
type Sampler struct {
	transport Transport
	interval  time.Duration
	jitter    *JitterTracker

	mu     sync.Mutex
	window *LatencyWindow
	stats  latencyStats
}

func NewSampler(t Transport, interval time.Duration, jitter *JitterTracker) *Sampler {
	if interval <= 0 {
		interval = DefaultLoadedProbeInterval
	}
	if jitter == nil {
		jitter = &JitterTracker{}
	}
	return &Sampler{
		transport: t,
		interval:  interval,
		jitter:    jitter,
		window:    NewLatencyWindow(WindowCapacity),
	}
}

// Run samples until ctx is cancelled. No probe is started once ctx is done;
// a probe already in flight may still complete but is not reported.
func (s *Sampler) Run(ctx context.Context, fn SampleFunc) {
	for {
		if ctx.Err() != nil {
			return
		}
		rtt, err := s.transport.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil || rtt < 0 {
			s.mu.Lock()
			s.stats.fail()
			s.mu.Unlock()
		} else {
			sample := s.record(rtt)
			if fn != nil {
				fn(sample)
			}
		}
		if clock.Sleep(ctx, s.interval) != nil {
			return
		}
	}
}

func (s *Sampler) record(rtt time.Duration) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Push(rtt)
	s.stats.add(rtt)
	jitter := s.window.Jitter()
	return Sample{
		Latency:   rtt,
		Jitter:    jitter,
		JitterMax: s.jitter.Observe(jitter),
	}
}

// Summary returns the statistics over every successful sample so far.
func (s *Sampler) Summary() LatencySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.summary()
}

// IdleProbe issues count sequential probes spaced by interval with no
// concurrent traffic. Failed probes are dropped. fn, if non-nil, sees every
// successful latency. Cancelling ctx stops the probe early.
func IdleProbe(ctx context.Context, t Transport, count int, interval time.Duration, fn func(time.Duration)) LatencySummary {
	if count <= 0 {
		count = DefaultIdleProbeCount
	}
	var st latencyStats
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		rtt, err := t.Probe(ctx)
		switch {
		case err != nil || rtt < 0:
			if ctx.Err() == nil {
				st.fail()
			}
		default:
			st.add(rtt)
			if fn != nil {
				fn(rtt)
			}
		}
		if i == count-1 {
			break
		}
		if clock.Sleep(ctx, interval) != nil {
			break
		}
	}
	return st.summary()
}
