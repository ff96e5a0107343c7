package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NodePath81/hyperspeed/internal/engine"
)

func TestServerMetricsRates(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(reg)
	m.AddDownloadBytes(1000)
	m.AddUploadBytes(250)
	m.updatePerSecond()
	rates := m.Rates()
	if rates.DownloadBps != 8000 || rates.UploadBps != 2000 {
		t.Fatalf("rates = %+v", rates)
	}
	m.updatePerSecond()
	if rates := m.Rates(); rates.DownloadBps != 0 {
		t.Fatalf("idle second rate = %d, want 0", rates.DownloadBps)
	}
	down, up := m.Totals()
	if down != 1000 || up != 250 {
		t.Fatalf("totals = %d / %d", down, up)
	}

	release := m.StreamStarted("download")
	m.Request("download")
	m.SetSessions(2)
	body := scrape(t, reg)
	for _, want := range []string{
		`hyperspeed_bytes_total{direction="download"} 1000`,
		`hyperspeed_active_streams{direction="download"} 1`,
		`hyperspeed_requests_total{endpoint="download"} 1`,
		`hyperspeed_control_sessions 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
	release()
	if body := scrape(t, reg); !strings.Contains(body, `hyperspeed_active_streams{direction="download"} 0`) {
		t.Fatalf("stream gauge not released")
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.AddDownloadBytes(10)
	m.Request("ping")
	m.StreamStarted("upload")()
}

func TestEngineObserver(t *testing.T) {
	reg := NewRegistry()
	o := NewEngineObserver(reg)
	o.RunStarted("r1")
	o.LatencySample(engine.PhasePing, 12*time.Millisecond)
	o.Throughput(engine.DirectionDownload, 5e8)
	o.PhaseCompleted(engine.PhaseResult{Direction: engine.DirectionDownload, Bytes: 4096, BitsPerSecond: 4e8})
	o.RunFinished("r1", engine.StateError, errors.New("boom"))

	body := scrape(t, reg)
	for _, want := range []string{
		`hyperspeed_runs_started_total 1`,
		`hyperspeed_runs_finished_total{state="error"} 1`,
		`hyperspeed_phase_bytes_total{direction="download"} 4096`,
		`hyperspeed_phase_result_bits_per_second{direction="download"} 4e+08`,
		`hyperspeed_latency_seconds_count{phase="ping"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	return string(body)
}
