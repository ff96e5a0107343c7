// Package control implements the websocket control channel: clients send
// start and abort commands and receive the run's progress as JSON messages.
package control

import (
	"time"

	"github.com/NodePath81/hyperspeed/internal/engine"
)

const (
	CommandStart = "start"
	CommandAbort = "abort"
)

// Command is a client to server control message. Duration is seconds.
type Command struct {
	Command  string `json:"command"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Streams  int    `json:"streams"`
	Duration int    `json:"duration"`
}

// Request converts a start command into engine parameters.
func (c Command) Request() engine.Request {
	return engine.Request{
		Streams:  c.Streams,
		Duration: time.Duration(c.Duration) * time.Second,
	}
}
