package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NodePath81/hyperspeed/internal/clock"
	"github.com/NodePath81/hyperspeed/internal/util"
)

// DefaultSettleDelay separates the download and upload phases.
const DefaultSettleDelay = 500 * time.Millisecond

// Options tunes the engine's cadences and payload. Zero values use defaults.
type Options struct {
	IdleProbeCount      int
	IdleProbeInterval   time.Duration
	LoadedProbeInterval time.Duration
	ReportInterval      time.Duration
	SettleDelay         time.Duration
	// UploadChunk is sent by every upload worker. Its content is irrelevant.
	UploadChunk []byte

	Clock    clock.Clock
	Observer Observer
}

func (o *Options) setDefaults() {
	if o.IdleProbeCount <= 0 {
		o.IdleProbeCount = DefaultIdleProbeCount
	}
	if o.IdleProbeInterval <= 0 {
		o.IdleProbeInterval = DefaultIdleProbeInterval
	}
	if o.LoadedProbeInterval <= 0 {
		o.LoadedProbeInterval = DefaultLoadedProbeInterval
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = DefaultReportInterval
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if len(o.UploadChunk) == 0 {
		o.UploadChunk = make([]byte, DefaultChunkSize)
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
}

// Orchestrator sequences a benchmark run: idle probe, download, upload,
// done. At most one run is active at a time; a finished or failed
// orchestrator can be started again.
type Orchestrator struct {
	transport  Transport
	opts       Options
	logger     util.Logger
	aggregator *Aggregator

	mu     sync.Mutex
	state  State
	runID  string
	cancel context.CancelCauseFunc
}

func NewOrchestrator(t Transport, opts Options, logger util.Logger) *Orchestrator {
	opts.setDefaults()
	if logger == nil {
		logger = util.NewLogger()
	}
	return &Orchestrator{
		transport:  t,
		opts:       opts,
		logger:     logger,
		aggregator: NewAggregator(t, opts.Clock, opts.UploadChunk, opts.ReportInterval, logger),
		state:      StateIdle,
	}
}

// State returns the current state machine position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunID returns the ID of the current or most recent run.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// Abort cancels the active run, which then ends in StateError. It is a
// no-op when nothing is running.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel(ErrAborted)
	}
}

// Run executes one full benchmark, sending events to events until it
// returns. The caller owns events, must keep receiving until Run returns
// and may close it afterwards. A nil channel discards events. On failure exactly one PhaseError event is
// emitted and the error is returned.
func (o *Orchestrator) Run(ctx context.Context, req Request, events chan<- Event) (Summary, error) {
	runCtx, runID, err := o.begin(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer o.end()

	streams := ClampStreams(req.Streams)
	em := &emitter{ctx: ctx, out: events, clock: o.opts.Clock, runID: runID}
	logger := o.logger.With("run_id", runID)
	summary := Summary{
		RunID:     runID,
		Streams:   streams,
		Duration:  req.Duration,
		StartedAt: o.opts.Clock.Now(),
	}
	o.opts.Observer.RunStarted(runID)
	logger.Info("benchmark started", "streams", streams, "duration", req.Duration)

	fail := func(err error) (Summary, error) {
		if cause := context.Cause(runCtx); cause != nil && errors.Is(err, context.Canceled) {
			err = cause
		}
		o.setState(StateError)
		if IsPhaseFatal(err) {
			logger.Error("benchmark failed", "error", err)
		} else {
			logger.Info("benchmark stopped", "error", err)
		}
		em.emit(Event{Phase: PhaseError, Status: StatusComplete, Err: err})
		o.opts.Observer.RunFinished(runID, StateError, err)
		return summary, err
	}

	em.emit(Event{Phase: PhasePing, Status: StatusStarting})
	idle := IdleProbe(runCtx, o.transport, o.opts.IdleProbeCount, o.opts.IdleProbeInterval, func(rtt time.Duration) {
		o.opts.Observer.LatencySample(PhasePing, rtt)
		em.emit(Event{Phase: PhasePing, Status: StatusRunning, Sample: &Sample{Latency: rtt}})
	})
	if runCtx.Err() != nil {
		return fail(context.Cause(runCtx))
	}
	if idle.Samples == 0 {
		logger.Warn("idle probe collected no samples", "failed", idle.Failed)
	}
	summary.Idle = idle
	em.emit(Event{Phase: PhasePing, Status: StatusComplete, Idle: &idle})

	jitter := &JitterTracker{}
	down, err := o.phase(runCtx, em, DirectionDownload, streams, req.Duration, jitter)
	if err != nil {
		return fail(err)
	}
	summary.Download = down

	if err := clock.Sleep(runCtx, o.opts.SettleDelay); err != nil {
		return fail(context.Cause(runCtx))
	}

	up, err := o.phase(runCtx, em, DirectionUpload, streams, req.Duration, jitter)
	if err != nil {
		return fail(err)
	}
	summary.Upload = up
	summary.FinishedAt = o.opts.Clock.Now()

	o.setState(StateDone)
	logger.Info("benchmark complete",
		"download", util.FormatBitsPerSecond(down.BitsPerSecond),
		"upload", util.FormatBitsPerSecond(up.BitsPerSecond),
		"ping", idle.Avg)
	em.emit(Event{Phase: PhaseDone, Status: StatusComplete, Summary: &summary})
	o.opts.Observer.RunFinished(runID, StateDone, nil)
	return summary, nil
}

// phase runs one transfer direction with a loaded sampler alongside it.
// The sampler is stopped and joined before the complete event is emitted.
func (o *Orchestrator) phase(ctx context.Context, em *emitter, dir Direction, streams int, duration time.Duration, jitter *JitterTracker) (PhaseResult, error) {
	if dir == DirectionDownload {
		o.setState(StateDownload)
	} else {
		o.setState(StateUpload)
	}
	phase := dir.Phase()
	em.emit(Event{Phase: phase, Status: StatusStarting})

	samplerCtx, stopSampler := context.WithCancel(ctx)
	sampler := NewSampler(o.transport, o.opts.LoadedProbeInterval, jitter)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.Run(samplerCtx, func(s Sample) {
			o.opts.Observer.LatencySample(phase, s.Latency)
			em.emit(Event{Phase: phase, Status: StatusRunning, Sample: &s})
		})
	}()

	result, err := o.aggregator.Run(ctx, streams, duration, dir, func(p Progress) {
		o.opts.Observer.Throughput(dir, p.BitsPerSecond)
		em.emit(Event{Phase: phase, Status: StatusRunning, Progress: &p})
	})
	stopSampler()
	wg.Wait()
	if err != nil {
		return result, err
	}

	result.Latency = sampler.Summary()
	result.JitterMax = jitter.Max()
	o.opts.Observer.PhaseCompleted(result)
	em.emit(Event{Phase: phase, Status: StatusComplete, Result: &result})
	return result, nil
}

func (o *Orchestrator) begin(parent context.Context) (context.Context, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Active() {
		return nil, "", ErrRunInProgress
	}
	ctx, cancel := context.WithCancelCause(parent)
	// Idle -> PingProbe happens under the lock so a concurrent start sees an active run.
	o.state = StatePingProbe
	o.runID = uuid.New().String()
	o.cancel = cancel
	return ctx, o.runID, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel(nil)
		o.cancel = nil
	}
	if o.state.Active() {
		o.state = StateError
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}
