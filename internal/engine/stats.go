package engine

import (
	"sync"
	"time"
)

// latencyStats accumulates min, max and mean over round-trip samples.
type latencyStats struct {
	count  int
	failed int
	sum    time.Duration
	min    time.Duration
	max    time.Duration
}

func (s *latencyStats) add(rtt time.Duration) {
	if s.count == 0 || rtt < s.min {
		s.min = rtt
	}
	if s.count == 0 || rtt > s.max {
		s.max = rtt
	}
	s.count++
	s.sum += rtt
}

func (s *latencyStats) fail() { s.failed++ }

func (s *latencyStats) summary() LatencySummary {
	if s.count == 0 {
		return LatencySummary{Failed: s.failed}
	}
	return LatencySummary{
		Avg:     s.sum / time.Duration(s.count),
		Min:     s.min,
		Max:     s.max,
		Jitter:  s.max - s.min,
		Samples: s.count,
		Failed:  s.failed,
	}
}

// Summarize computes the idle-probe statistics over samples.
func Summarize(samples []time.Duration) LatencySummary {
	var st latencyStats
	for _, s := range samples {
		st.add(s)
	}
	return st.summary()
}

// JitterTracker holds the run-wide maximum of the sliding-window jitter.
// The value never decreases; each run starts a fresh tracker.
type JitterTracker struct {
	mu  sync.Mutex
	max time.Duration
}

// Observe folds jitter into the running maximum and returns the new maximum.
func (j *JitterTracker) Observe(jitter time.Duration) time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if jitter > j.max {
		j.max = jitter
	}
	return j.max
}

func (j *JitterTracker) Max() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.max
}

// Throughput returns bits per second for bytes moved over d.
func Throughput(bytes int64, d time.Duration) float64 {
	if bytes <= 0 || d <= 0 {
		return 0
	}
	return float64(bytes) * 8 / d.Seconds()
}
