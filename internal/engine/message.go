package engine

import "github.com/NodePath81/hyperspeed/internal/util"

// Message is the JSON shape of an event on the control channel. Speeds are
// Gbps and latencies milliseconds.
type Message struct {
	Type      string  `json:"type"`
	State     string  `json:"state,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Ping      float64 `json:"ping,omitempty"`
	Jitter    float64 `json:"jitter,omitempty"`
	PingMin   float64 `json:"pingMin,omitempty"`
	PingMax   float64 `json:"pingMax,omitempty"`
	PingAvg   float64 `json:"pingAvg,omitempty"`
	JitterMax float64 `json:"jitterMax,omitempty"`
	Download  float64 `json:"download,omitempty"`
	Upload    float64 `json:"upload,omitempty"`
	Message   string  `json:"message,omitempty"`
	RunID     string  `json:"runId,omitempty"`
}

// Message flattens ev into its wire form.
func (ev Event) Message() Message {
	m := Message{
		Type:  ev.Phase.String(),
		State: ev.Status.String(),
		RunID: ev.RunID,
	}
	if ev.Progress != nil {
		m.Speed = util.Gbps(ev.Progress.BitsPerSecond)
	}
	if ev.Sample != nil {
		m.Ping = util.Millis(ev.Sample.Latency)
		m.Jitter = util.Millis(ev.Sample.Jitter)
		m.JitterMax = util.Millis(ev.Sample.JitterMax)
	}
	if ev.Idle != nil {
		m.Ping = util.Millis(ev.Idle.Avg)
		m.Jitter = util.Millis(ev.Idle.Jitter)
		m.PingAvg = util.Millis(ev.Idle.Avg)
		m.PingMin = util.Millis(ev.Idle.Min)
		m.PingMax = util.Millis(ev.Idle.Max)
	}
	if r := ev.Result; r != nil {
		m.Speed = util.Gbps(r.BitsPerSecond)
		m.PingAvg = util.Millis(r.Latency.Avg)
		m.PingMin = util.Millis(r.Latency.Min)
		m.PingMax = util.Millis(r.Latency.Max)
		m.JitterMax = util.Millis(r.JitterMax)
	}
	if s := ev.Summary; s != nil {
		m.Download = util.Gbps(s.Download.BitsPerSecond)
		m.Upload = util.Gbps(s.Upload.BitsPerSecond)
		m.Ping = util.Millis(s.Idle.Avg)
		m.Jitter = util.Millis(s.Idle.Jitter)
		m.JitterMax = util.Millis(s.Upload.JitterMax)
	}
	if ev.Err != nil {
		m.State = ""
		m.Message = ev.Err.Error()
	}
	return m
}

// ErrorMessage builds a standalone error reply.
func ErrorMessage(text string) Message {
	return Message{Type: PhaseError.String(), Message: text}
}
