// Package report renders benchmark messages for a terminal or as JSON lines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/NodePath81/hyperspeed/internal/engine"
)

// Format selects how messages are written.
type Format int

const (
	// FormatText writes human-readable progress. Running updates overwrite
	// one line when the output is a terminal and are omitted otherwise.
	FormatText Format = iota
	// FormatJSON writes each message as one JSON line.
	FormatJSON
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Renderer is an event sink that writes messages to w.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	tty    bool
	enc    *json.Encoder

	phase   string
	speed   float64
	ping    float64
	jitter  float64
	pending bool
}

func NewRenderer(w io.Writer, format Format, tty bool) *Renderer {
	return &Renderer{w: w, format: format, tty: tty, enc: json.NewEncoder(w)}
}

// Consume renders every event until events is closed.
func (r *Renderer) Consume(events <-chan engine.Event) {
	for ev := range events {
		r.Render(ev.Message())
	}
}

// Render writes one message.
func (r *Renderer) Render(m engine.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.format == FormatJSON {
		_ = r.enc.Encode(m)
		return
	}

	if m.Type != r.phase {
		r.phase = m.Type
		r.speed, r.ping, r.jitter = 0, 0, 0
	}
	switch {
	case m.Type == "error":
		r.endLine()
		fmt.Fprintf(r.w, "[error] %s\n", m.Message)
	case m.Type == "done":
		r.endLine()
		r.summary(m)
	case m.State == "starting":
		r.endLine()
		fmt.Fprintf(r.w, "[%s] Starting...\n", m.Type)
	case m.State == "running":
		r.running(m)
	case m.State == "complete":
		r.complete(m)
	}
}

func (r *Renderer) running(m engine.Message) {
	if m.Speed > 0 {
		r.speed = m.Speed
	}
	if m.Ping > 0 {
		r.ping, r.jitter = m.Ping, m.Jitter
	}
	if !r.tty {
		return
	}
	if m.Type == "ping" {
		fmt.Fprintf(r.w, "\r[%s] Running... %.1f ms   ", m.Type, r.ping)
	} else {
		fmt.Fprintf(r.w, "\r[%s] Running... %.2f Gbps | Ping: %.1f ms | Jitter: %.1f ms   ",
			m.Type, r.speed, r.ping, r.jitter)
	}
	r.pending = true
}

func (r *Renderer) complete(m engine.Message) {
	if r.tty {
		fmt.Fprint(r.w, "\r")
	}
	r.pending = false
	if m.Type == "ping" {
		fmt.Fprintf(r.w, "[%s] COMPLETE | Avg: %.1f ms | Jitter: %.1f ms\n", m.Type, m.PingAvg, m.Jitter)
		return
	}
	fmt.Fprintf(r.w, "[%s] COMPLETE: %.2f Gbps | Latency Avg: %.1f ms (Min: %.0f / Max: %.0f) | Max Jitter: %.1f ms\n",
		m.Type, m.Speed, m.PingAvg, m.PingMin, m.PingMax, m.JitterMax)
}

func (r *Renderer) summary(m engine.Message) {
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "Download:   %.2f Gbps\n", m.Download)
	fmt.Fprintf(r.w, "Upload:     %.2f Gbps\n", m.Upload)
	fmt.Fprintf(r.w, "Idle ping:  %.1f ms (jitter %.1f ms)\n", m.Ping, m.Jitter)
	fmt.Fprintf(r.w, "Max jitter: %.1f ms\n", m.JitterMax)
}

func (r *Renderer) endLine() {
	if r.pending {
		fmt.Fprintln(r.w)
		r.pending = false
	}
}
