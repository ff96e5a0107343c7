package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.BindPort != 8080 || cfg.Server.DownloadChunkBytes != 1<<20 {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Client.Streams != 4 || cfg.Client.Duration.Duration() != 10*time.Second {
		t.Fatalf("client defaults = %+v", cfg.Client)
	}
	if cfg.Client.UploadChunkBytes != 1<<20 {
		t.Fatalf("upload chunk = %d, want %d", cfg.Client.UploadChunkBytes, 1<<20)
	}
	if !cfg.Metrics.IsEnabled() {
		t.Fatalf("metrics should default to enabled")
	}
}

func TestLoadConfig(t *testing.T) {
	doc := `
server:
  bind_port: 9000
  download_chunk: 256KiB
  stream_rate_limit: 500m
client:
  target: speed.example.net
  streams: 16
  duration: 5
  settle_delay: 250ms
  socket_buffer: 4MiB
metrics:
  enabled: false
logging:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "hyperspeed.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	if cfg.Server.BindPort != 9000 || cfg.Server.DownloadChunkBytes != 256<<10 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.StreamRateLimitBps != 500_000_000 {
		t.Fatalf("stream rate = %d, want 500000000", cfg.Server.StreamRateLimitBps)
	}
	// Streams are clamped by the engine, not rejected here.
	if cfg.Client.Streams != 16 {
		t.Fatalf("streams = %d, want 16", cfg.Client.Streams)
	}
	if cfg.Client.Duration.Duration() != 5*time.Second || cfg.Client.SettleDelay.Duration() != 250*time.Millisecond {
		t.Fatalf("durations = %v / %v", cfg.Client.Duration.Duration(), cfg.Client.SettleDelay.Duration())
	}
	if cfg.Client.SocketBufferBytes != 4<<20 {
		t.Fatalf("socket buffer = %d", cfg.Client.SocketBufferBytes)
	}
	if cfg.Metrics.IsEnabled() {
		t.Fatalf("metrics should be disabled")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad port":      "server:\n  bind_port: 70000\n",
		"bad chunk":     "server:\n  download_chunk: lots\n",
		"bare rate":     "server:\n  stream_rate_limit: \"100\"\n",
		"bad format":    "logging:\n  format: xml\n",
		"negative wait": "client:\n  settle_delay: -1s\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: Parse succeeded, want error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{EnvServerPort: "9090"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv error = %v", err)
	}
	if cfg.Server.BindPort != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.BindPort)
	}

	env[EnvServerPort] = "not-a-port"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Fatalf("ApplyEnv accepted invalid port")
	}
	if cfg.Server.BindPort != 9090 {
		t.Fatalf("invalid override changed port to %d", cfg.Server.BindPort)
	}
}

func TestParseBandwidth(t *testing.T) {
	cases := map[string]uint64{"": 0, "0": 0, "100k": 100_000, "1.5g": 1_500_000_000, "20M": 20_000_000}
	for in, want := range cases {
		got, err := ParseBandwidth(in)
		if err != nil || got != want {
			t.Fatalf("ParseBandwidth(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := ParseBandwidth("-5m"); err == nil {
		t.Fatalf("negative bandwidth accepted")
	}
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{"": 0, "1MiB": 1 << 20, "64KiB": 64 << 10, "1MB": 1_000_000, "4096": 4096}
	for in, want := range cases {
		got, err := ParseSize(in)
		if err != nil || got != want {
			t.Fatalf("ParseSize(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
}
