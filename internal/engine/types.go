package engine

import (
	"context"
	"io"
	"time"
)

// Transport is the network collaborator the engine drives. Every call must
// honor ctx so an abandoned request can be aborted.
type Transport interface {
	// Probe issues one zero-body round trip and returns its latency.
	Probe(ctx context.Context) (time.Duration, error)
	// OpenDownloadStream opens a byte stream that yields data until the
	// server ends it or ctx is cancelled.
	OpenDownloadStream(ctx context.Context) (io.ReadCloser, error)
	// SendUploadChunk submits chunk and returns once the endpoint acknowledged it.
	SendUploadChunk(ctx context.Context, chunk []byte) error
}

// Direction describes traffic flow relative to the client.
type Direction int

const (
	DirectionDownload Direction = iota
	DirectionUpload
)

func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	default:
		return "download"
	}
}

// Phase returns the event phase a transfer in direction d belongs to.
func (d Direction) Phase() Phase {
	if d == DirectionUpload {
		return PhaseUpload
	}
	return PhaseDownload
}

// Phase identifies the part of a run an event belongs to. The string form
// is the "type" field of the wire message.
type Phase int

const (
	PhasePing Phase = iota
	PhaseDownload
	PhaseUpload
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhasePing:
		return "ping"
	case PhaseDownload:
		return "download"
	case PhaseUpload:
		return "upload"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the lifecycle position of a phase inside an event.
type Status int

const (
	StatusStarting Status = iota
	StatusRunning
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	default:
		return "complete"
	}
}

// State is the orchestrator's state machine position.
type State int

const (
	StateIdle State = iota
	StatePingProbe
	StateDownload
	StateUpload
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePingProbe:
		return "ping-probe"
	case StateDownload:
		return "download"
	case StateUpload:
		return "upload"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a run is in progress in state s.
func (s State) Active() bool {
	return s == StatePingProbe || s == StateDownload || s == StateUpload
}

// LatencySummary aggregates a set of successful round-trip samples.
// Jitter is Max-Min over the whole set, not the sliding-window figure.
type LatencySummary struct {
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
	Jitter  time.Duration
	Samples int
	Failed  int
}

// PhaseResult is the immutable outcome of one transfer phase.
type PhaseResult struct {
	Direction Direction
	Streams   int
	Bytes     int64
	// Elapsed is the measured time from phase start until every worker exited.
	Elapsed time.Duration
	// Duration is the configured phase length.
	Duration time.Duration
	// BitsPerSecond divides by Elapsed and is the reported speed.
	BitsPerSecond float64
	// NominalBitsPerSecond divides by the configured Duration.
	NominalBitsPerSecond float64

	Latency   LatencySummary
	JitterMax time.Duration
}

// Summary combines the idle probe with both phase results.
type Summary struct {
	RunID      string
	Streams    int
	Duration   time.Duration
	Idle       LatencySummary
	Download   PhaseResult
	Upload     PhaseResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Sample is one loaded latency observation.
type Sample struct {
	Latency   time.Duration
	Jitter    time.Duration
	JitterMax time.Duration
}

// Progress is a throughput snapshot taken by the phase aggregator.
type Progress struct {
	Bytes         int64
	Elapsed       time.Duration
	BitsPerSecond float64
}

// Event is emitted on the run's event channel. Exactly one of the payload
// pointers is set for payload-carrying events; throughput ticks use Progress.
type Event struct {
	Time   time.Time
	RunID  string
	Phase  Phase
	Status Status

	Progress *Progress
	Sample   *Sample
	Idle     *LatencySummary
	Result   *PhaseResult
	Summary  *Summary
	Err      error
}

// Request carries the per-run parameters of a start command.
type Request struct {
	Streams  int
	Duration time.Duration
}
