package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NodePath81/hyperspeed/internal/clock"
	"github.com/NodePath81/hyperspeed/internal/util"
)

const (
	MaxStreams            = 8
	DefaultStreams        = 4
	DefaultReportInterval = 100 * time.Millisecond
)

// ClampStreams applies the worker bound: non-positive requests use the
// default, anything else is limited to [1, MaxStreams].
func ClampStreams(n int) int {
	if n <= 0 {
		return DefaultStreams
	}
	return util.ClampInt(n, 1, MaxStreams)
}

// ProgressFunc receives throughput snapshots at the report interval.
type ProgressFunc func(Progress)

// Aggregator runs one transfer phase over a pool of workers.
type Aggregator struct {
	transport Transport
	clock     clock.Clock
	chunk     []byte
	interval  time.Duration
	logger    util.Logger
}

func NewAggregator(t Transport, clk clock.Clock, chunk []byte, interval time.Duration, logger util.Logger) *Aggregator {
	if clk == nil {
		clk = clock.Real()
	}
	if len(chunk) == 0 {
		chunk = make([]byte, DefaultChunkSize)
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Aggregator{
		transport: t,
		clock:     clk,
		chunk:     chunk,
		interval:  interval,
		logger:    logger,
	}
}

// Run spawns the workers, reports progress on every tick and cancels the
// pool when duration elapses or ctx ends. It returns only after every
// worker has exited. A non-positive duration yields a zero result without
// starting any worker.
func (a *Aggregator) Run(ctx context.Context, streams int, duration time.Duration, dir Direction, progress ProgressFunc) (PhaseResult, error) {
	streams = ClampStreams(streams)
	result := PhaseResult{Direction: dir, Streams: streams, Duration: duration}
	if duration <= 0 {
		return result, nil
	}

	phaseCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	g, gctx := errgroup.WithContext(phaseCtx)

	pool := make([]*worker, streams)
	start := a.clock.Now()
	for i := range pool {
		w := newWorker(i, dir, a.transport, a.chunk)
		pool[i] = w
		g.Go(func() error {
			if err := w.run(gctx); err != nil {
				return fmt.Errorf("%s worker %d: %w", dir, w.id, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	var err error
wait:
	for {
		select {
		case <-ticker.C():
			if progress == nil {
				continue
			}
			elapsed := clock.Since(a.clock, start)
			bytes := sumBytes(pool)
			progress(Progress{Bytes: bytes, Elapsed: elapsed, BitsPerSecond: Throughput(bytes, elapsed)})
		case err = <-done:
			break wait
		}
	}

	result.Elapsed = clock.Since(a.clock, start)
	result.Bytes = sumBytes(pool)
	result.BitsPerSecond = Throughput(result.Bytes, result.Elapsed)
	result.NominalBitsPerSecond = Throughput(result.Bytes, duration)

	var failures, reached int64
	for _, w := range pool {
		failures += w.failures.Load()
		if w.reached.Load() {
			reached++
		}
	}
	if a.logger != nil {
		a.logger.Debug("phase finished", "phase", dir.String(), "streams", streams,
			"bytes", result.Bytes, "elapsed", result.Elapsed, "failures", failures)
	}

	if err != nil {
		return result, err
	}
	if ctx.Err() != nil {
		return result, context.Cause(ctx)
	}
	if reached == 0 {
		return result, fmt.Errorf("%s phase: %w", dir, ErrEndpointUnreachable)
	}
	return result, nil
}

func sumBytes(pool []*worker) int64 {
	var total int64
	for _, w := range pool {
		total += w.Bytes()
	}
	return total
}

// IsPhaseFatal reports whether err ended a phase rather than the caller
// cancelling it.
func IsPhaseFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrAborted)
}
