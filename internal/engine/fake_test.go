package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

type permanentError struct{}

func (permanentError) Error() string { return "rejected" }
func (permanentError) Permanent() bool { return true }

// fakeTransport serves deterministic latencies and an unbounded stream of
// readChunk-sized reads, recording everything it handed out.
type fakeTransport struct {
	mu        sync.Mutex
	latencies []time.Duration
	next      int

	probeErr    error
	downloadErr error
	uploadErr   error
	readChunk   int
	readDelay   time.Duration

	probes   atomic.Int64
	opened   atomic.Int64
	closed   atomic.Int64
	served   atomic.Int64
	uploaded atomic.Int64
	active   atomic.Int64
	peak     atomic.Int64
}

func (f *fakeTransport) Probe(ctx context.Context) (time.Duration, error) {
	f.probes.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.latencies) == 0 {
		return time.Millisecond, nil
	}
	rtt := f.latencies[f.next%len(f.latencies)]
	f.next++
	return rtt, nil
}

func (f *fakeTransport) OpenDownloadStream(ctx context.Context) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.opened.Add(1)
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	chunk := f.readChunk
	if chunk <= 0 {
		chunk = 4096
	}
	return &fakeStream{ctx: ctx, f: f, chunk: chunk}, nil
}

func (f *fakeTransport) SendUploadChunk(ctx context.Context, chunk []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if f.readDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.readDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.uploaded.Add(int64(len(chunk)))
	return nil
}

type fakeStream struct {
	ctx    context.Context
	f      *fakeTransport
	chunk  int
	closed bool
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if s.f.readDelay > 0 {
		select {
		case <-s.ctx.Done():
			return 0, s.ctx.Err()
		case <-time.After(s.f.readDelay):
		}
	}
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	n := min(s.chunk, len(p))
	s.f.served.Add(int64(n))
	return n, nil
}

func (s *fakeStream) Close() error {
	if !s.closed {
		s.closed = true
		s.f.closed.Add(1)
		s.f.active.Add(-1)
	}
	return nil
}

var errTransient = errors.New("connection reset")

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, x := range v {
		out[i] = time.Duration(x) * time.Millisecond
	}
	return out
}
