package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/NodePath81/hyperspeed/internal/config"
)

func TestPromptKeepsDefaultsOnEmptyAnswers(t *testing.T) {
	cfg := config.Default().Client
	var out bytes.Buffer
	if err := prompt(strings.NewReader("\n\n\n\n"), &out, &cfg, false); err != nil {
		t.Fatalf("prompt error = %v", err)
	}
	if cfg.Target != "127.0.0.1" || cfg.Port != 8080 || cfg.Streams != 4 || cfg.Duration.Duration() != 10*time.Second {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestPromptRetriesOutOfRange(t *testing.T) {
	cfg := config.Default().Client
	var out bytes.Buffer
	input := "example.net\n9000\n12\n3\n5\n"
	if err := prompt(strings.NewReader(input), &out, &cfg, false); err != nil {
		t.Fatalf("prompt error = %v", err)
	}
	if cfg.Target != "example.net" || cfg.Port != 9000 || cfg.Streams != 3 {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.Duration.Duration() != 5*time.Second {
		t.Fatalf("duration = %v, want 5s", cfg.Duration.Duration())
	}
	if !strings.Contains(out.String(), "between 1 and 8") {
		t.Fatalf("expected range hint, got %q", out.String())
	}
}

func TestPromptEOF(t *testing.T) {
	cfg := config.Default().Client
	err := prompt(strings.NewReader("host\n"), io.Discard, &cfg, true)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("prompt error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	cmd := runCmd()
	if err := cmd.ParseFlags([]string{"--host", "10.0.0.2", "-c", "6", "-d", "3"}); err != nil {
		t.Fatalf("ParseFlags error = %v", err)
	}
	opts := runOptions{}
	opts.target, _ = cmd.Flags().GetString("target")
	opts.streams, _ = cmd.Flags().GetInt("streams")
	opts.duration, _ = cmd.Flags().GetInt("duration")

	cfg := config.Default().Client
	applyRunFlags(cmd, &cfg, opts)
	if cfg.Target != "10.0.0.2" || cfg.Streams != 6 || cfg.Duration.Duration() != 3*time.Second {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want default 8080", cfg.Port)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "dev" {
		t.Fatalf("version output = %q", out.String())
	}
}
