package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		IdleProbeCount:      5,
		IdleProbeInterval:   time.Millisecond,
		LoadedProbeInterval: 5 * time.Millisecond,
		ReportInterval:      5 * time.Millisecond,
		SettleDelay:         time.Millisecond,
		UploadChunk:         make([]byte, 1024),
	}
}

// collect drains events until the channel is closed.
func collect(ch <-chan Event) <-chan []Event {
	out := make(chan []Event, 1)
	go func() {
		var events []Event
		for ev := range ch {
			events = append(events, ev)
		}
		out <- events
	}()
	return out
}

func runOnce(t *testing.T, o *Orchestrator, req Request) (Summary, []Event, error) {
	t.Helper()
	ch := make(chan Event)
	done := collect(ch)
	summary, err := o.Run(context.Background(), req, ch)
	close(ch)
	return summary, <-done, err
}

func TestOrchestratorFullRun(t *testing.T) {
	ft := &fakeTransport{latencies: ms(10, 12, 11, 50, 11), readChunk: 1000, readDelay: time.Millisecond}
	o := NewOrchestrator(ft, testOptions(), testLogger())

	summary, events, err := runOnce(t, o, Request{Streams: 2, Duration: 40 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if o.State() != StateDone {
		t.Fatalf("state = %v, want done", o.State())
	}
	if summary.Idle.Avg != 18800*time.Microsecond || summary.Idle.Jitter != 40*time.Millisecond {
		t.Fatalf("idle summary = %+v", summary.Idle)
	}
	if summary.Download.Bytes == 0 || summary.Upload.Bytes == 0 {
		t.Fatalf("summary bytes = %d / %d, want > 0", summary.Download.Bytes, summary.Upload.Bytes)
	}
	if summary.RunID == "" || summary.RunID != o.RunID() {
		t.Fatalf("run id = %q, orchestrator = %q", summary.RunID, o.RunID())
	}

	if len(events) == 0 {
		t.Fatalf("no events emitted")
	}
	first, last := events[0], events[len(events)-1]
	if first.Phase != PhasePing || first.Status != StatusStarting {
		t.Fatalf("first event = %v/%v, want ping/starting", first.Phase, first.Status)
	}
	if last.Phase != PhaseDone || last.Summary == nil {
		t.Fatalf("last event = %v, want done with summary", last.Phase)
	}

	order := map[Phase]int{PhasePing: 0, PhaseDownload: 1, PhaseUpload: 2, PhaseDone: 3}
	completed := map[Phase]bool{}
	for i, ev := range events {
		if ev.Phase == PhaseError {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if i > 0 {
			prev := events[i-1]
			if ev.Time.Before(prev.Time) {
				t.Fatalf("event %d time went backwards", i)
			}
			if order[ev.Phase] < order[prev.Phase] {
				t.Fatalf("event %d phase %v after %v", i, ev.Phase, prev.Phase)
			}
		}
		if completed[ev.Phase] {
			t.Fatalf("event %d (%v/%v) after phase completed", i, ev.Phase, ev.Status)
		}
		if ev.Status == StatusComplete {
			completed[ev.Phase] = true
		}
	}
	for _, p := range []Phase{PhasePing, PhaseDownload, PhaseUpload, PhaseDone} {
		if !completed[p] {
			t.Fatalf("phase %v never completed", p)
		}
	}
}

func TestOrchestratorZeroDuration(t *testing.T) {
	ft := &fakeTransport{}
	o := NewOrchestrator(ft, testOptions(), testLogger())
	summary, _, err := runOnce(t, o, Request{Streams: 4, Duration: 0})
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if summary.Download.Bytes != 0 || summary.Upload.Bytes != 0 {
		t.Fatalf("bytes = %d / %d, want 0", summary.Download.Bytes, summary.Upload.Bytes)
	}
	if ft.opened.Load() != 0 || ft.uploaded.Load() != 0 {
		t.Fatalf("zero-duration run generated traffic")
	}
}

func TestOrchestratorUnreachable(t *testing.T) {
	ft := &fakeTransport{probeErr: errTransient, downloadErr: errTransient}
	o := NewOrchestrator(ft, testOptions(), testLogger())
	_, events, err := runOnce(t, o, Request{Streams: 2, Duration: 20 * time.Millisecond})
	if !errors.Is(err, ErrEndpointUnreachable) {
		t.Fatalf("Run error = %v, want ErrEndpointUnreachable", err)
	}
	if o.State() != StateError {
		t.Fatalf("state = %v, want error", o.State())
	}
	errorEvents := 0
	for _, ev := range events {
		if ev.Phase == PhaseError {
			errorEvents++
			if ev.Message().Message == "" {
				t.Fatalf("error event without message")
			}
		}
		if ev.Phase == PhaseUpload {
			t.Fatalf("upload phase started after fatal download failure")
		}
	}
	if errorEvents != 1 {
		t.Fatalf("error events = %d, want 1", errorEvents)
	}
}

func TestOrchestratorAbortAndRestart(t *testing.T) {
	ft := &fakeTransport{readChunk: 256, readDelay: time.Millisecond}
	o := NewOrchestrator(ft, testOptions(), testLogger())

	ch := make(chan Event)
	done := collect(ch)
	errc := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), Request{Streams: 2, Duration: 10 * time.Second}, ch)
		errc <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for o.State() != StateDownload {
		if time.Now().After(deadline) {
			t.Fatalf("run never reached download, state = %v", o.State())
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := o.Run(context.Background(), Request{Streams: 1, Duration: time.Second}, nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("concurrent Run error = %v, want ErrRunInProgress", err)
	}

	o.Abort()
	err := <-errc
	close(ch)
	events := <-done
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Run error = %v, want ErrAborted", err)
	}
	if o.State() != StateError {
		t.Fatalf("state = %v, want error", o.State())
	}
	lastEv := events[len(events)-1]
	if lastEv.Phase != PhaseError || lastEv.Message().Message != "aborted" {
		t.Fatalf("last event = %+v, want aborted error", lastEv.Message())
	}
	if ft.active.Load() != 0 {
		t.Fatalf("streams still active after abort")
	}

	if _, _, err := runOnce(t, o, Request{Streams: 1, Duration: 10 * time.Millisecond}); err != nil {
		t.Fatalf("restart after abort error = %v", err)
	}
	if o.State() != StateDone {
		t.Fatalf("state after restart = %v, want done", o.State())
	}
}

func TestOrchestratorCallerCancelEmitsOneError(t *testing.T) {
	for i := 0; i < 20; i++ {
		ft := &fakeTransport{readChunk: 256, readDelay: time.Millisecond}
		o := NewOrchestrator(ft, testOptions(), testLogger())
		ctx, cancel := context.WithCancel(context.Background())

		ch := make(chan Event)
		done := collect(ch)
		errc := make(chan error, 1)
		go func() {
			_, err := o.Run(ctx, Request{Streams: 2, Duration: 10 * time.Second}, ch)
			errc <- err
		}()

		deadline := time.Now().Add(5 * time.Second)
		for o.State() != StateDownload {
			if time.Now().After(deadline) {
				cancel()
				t.Fatalf("run %d never reached download, state = %v", i, o.State())
			}
			time.Sleep(time.Millisecond)
		}
		cancel()
		err := <-errc
		close(ch)
		events := <-done

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run %d error = %v, want context.Canceled", i, err)
		}
		errorEvents := 0
		for _, ev := range events {
			if ev.Phase == PhaseError {
				errorEvents++
			}
		}
		if errorEvents != 1 {
			t.Fatalf("run %d error events = %d, want 1", i, errorEvents)
		}
		if last := events[len(events)-1]; last.Phase != PhaseError || last.Err == nil {
			t.Fatalf("run %d last event = %+v, want error with cause", i, last.Message())
		}
	}
}

func TestEventMessage(t *testing.T) {
	idle := Summarize(ms(10, 12, 11, 50, 11))
	m := Event{Phase: PhasePing, Status: StatusComplete, Idle: &idle}.Message()
	if m.Type != "ping" || m.State != "complete" || m.PingAvg != 18.8 || m.Jitter != 40 || m.PingMin != 10 || m.PingMax != 50 {
		t.Fatalf("ping message = %+v", m)
	}

	p := Progress{BitsPerSecond: 2.5e9}
	m = Event{Phase: PhaseDownload, Status: StatusRunning, Progress: &p}.Message()
	if m.Type != "download" || m.State != "running" || m.Speed != 2.5 {
		t.Fatalf("progress message = %+v", m)
	}

	m = Event{Phase: PhaseError, Status: StatusComplete, Err: ErrAborted}.Message()
	if m.Type != "error" || m.Message != "aborted" || m.State != "" {
		t.Fatalf("error message = %+v", m)
	}
}
