package engine

import "time"

// WindowCapacity is the number of recent samples the loaded sampler keeps.
const WindowCapacity = 10

// LatencyWindow is a bounded FIFO of recent round-trip samples in arrival
// order. It is not safe for concurrent use; the sampler owns it.
type LatencyWindow struct {
	samples  []time.Duration
	capacity int
}

func NewLatencyWindow(capacity int) *LatencyWindow {
	if capacity <= 0 {
		capacity = WindowCapacity
	}
	return &LatencyWindow{
		samples:  make([]time.Duration, 0, capacity),
		capacity: capacity,
	}
}

// Push appends rtt, evicting and returning the oldest sample when the
// window is full.
func (w *LatencyWindow) Push(rtt time.Duration) (evicted time.Duration, ok bool) {
	if len(w.samples) == w.capacity {
		evicted = w.samples[0]
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
		ok = true
	}
	w.samples = append(w.samples, rtt)
	return evicted, ok
}

func (w *LatencyWindow) Len() int { return len(w.samples) }

// Samples returns a copy of the window, oldest first.
func (w *LatencyWindow) Samples() []time.Duration {
	out := make([]time.Duration, len(w.samples))
	copy(out, w.samples)
	return out
}

// Jitter is max-min of the current window, or zero with fewer than two samples.
func (w *LatencyWindow) Jitter() time.Duration {
	if len(w.samples) < 2 {
		return 0
	}
	lo, hi := w.samples[0], w.samples[0]
	for _, s := range w.samples[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi - lo
}
