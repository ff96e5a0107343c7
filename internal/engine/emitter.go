package engine

import (
	"context"
	"sync"

	"github.com/NodePath81/hyperspeed/internal/clock"
)

// emitter stamps and forwards events for one run. Concurrent producers
// serialize through mu so timestamps on the channel never go backwards.
//
// Progress events are dropped once ctx is done. The terminal done or error
// event is always delivered; the caller drains events until Run returns.
type emitter struct {
	mu    sync.Mutex
	ctx   context.Context
	out   chan<- Event
	clock clock.Clock
	runID string
}

func (e *emitter) emit(ev Event) {
	if e.out == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ev.Time = e.clock.Now()
	ev.RunID = e.runID
	if ev.terminal() {
		e.out <- ev
		return
	}
	select {
	case e.out <- ev:
	case <-e.ctx.Done():
	}
}

func (ev Event) terminal() bool {
	return ev.Phase == PhaseDone || ev.Phase == PhaseError
}
