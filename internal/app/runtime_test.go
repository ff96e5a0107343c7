package app

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/NodePath81/hyperspeed/internal/config"
	"github.com/NodePath81/hyperspeed/internal/control"
	"github.com/NodePath81/hyperspeed/internal/engine"
	"github.com/NodePath81/hyperspeed/internal/util"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.BindAddr = "127.0.0.1"
	cfg.Server.BindPort = 0
	cfg.Server.DownloadChunkBytes = 64 << 10
	cfg.Client.IdleProbeCount = 3
	cfg.Client.IdleProbeInterval = config.Duration(time.Millisecond)
	cfg.Client.SettleDelay = config.Duration(10 * time.Millisecond)
	cfg.Client.UploadChunkBytes = 64 << 10
	return cfg
}

func startRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg, util.NewLoggerWith(io.Discard, "error", "text"))
	if err != nil {
		t.Fatalf("NewRuntime error = %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	t.Cleanup(rt.Stop)
	return rt
}

func TestRuntimeControlRun(t *testing.T) {
	rt := startRuntime(t, testConfig())
	port := rt.Addr().(*net.TCPAddr).Port

	c, err := control.Dial(context.Background(), control.URL("127.0.0.1", port), "")
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer c.Close()

	var done engine.Message
	err = c.Run(context.Background(), control.Command{Streams: 2, Duration: 1}, func(m engine.Message) {
		if m.Type == "done" {
			done = m
		}
	})
	if err != nil {
		t.Fatalf("remote run error = %v", err)
	}
	if done.Download <= 0 || done.Upload <= 0 {
		t.Fatalf("done message = %+v, want positive speeds", done)
	}
}

func TestRuntimeRejectsRemoteTarget(t *testing.T) {
	rt := startRuntime(t, testConfig())
	if _, err := rt.newRunner("203.0.113.7", 8080); !errors.Is(err, ErrTargetNotAllowed) {
		t.Fatalf("newRunner error = %v, want ErrTargetNotAllowed", err)
	}
	if _, err := rt.newRunner("localhost", 0); err != nil {
		t.Fatalf("loopback runner error = %v", err)
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := config.Default().Client
	opts := EngineOptions(cfg, nil)
	if opts.IdleProbeCount != 20 || opts.LoadedProbeInterval != 200*time.Millisecond {
		t.Fatalf("options = %+v", opts)
	}
	if len(opts.UploadChunk) != 1<<20 {
		t.Fatalf("upload chunk = %d bytes", len(opts.UploadChunk))
	}
}
