package engine

import "time"

// Observer receives engine activity for instrumentation. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	RunStarted(runID string)
	Throughput(dir Direction, bps float64)
	LatencySample(phase Phase, rtt time.Duration)
	PhaseCompleted(result PhaseResult)
	RunFinished(runID string, state State, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) RunStarted(string) {}
func (NopObserver) Throughput(Direction, float64) {}
func (NopObserver) LatencySample(Phase, time.Duration) {}
func (NopObserver) PhaseCompleted(PhaseResult) {}
func (NopObserver) RunFinished(string, State, error) {}
