package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NodePath81/hyperspeed/internal/engine"
	"github.com/NodePath81/hyperspeed/internal/transport"
	"github.com/NodePath81/hyperspeed/internal/util"
)

const dialTimeout = 5 * time.Second

// Client drives a benchmark on a remote server over the control channel.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// URL returns the control endpoint of the server at host:port.
func URL(host string, port int) string {
	return "ws://" + util.NetJoin(host, port) + transport.PathControl
}

// Dial connects to a control endpoint. A non-empty token is sent both as a
// bearer header and as a websocket subprotocol.
func Dial(ctx context.Context, rawURL, token string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
		Subprotocols:     []string{wsPrimaryProtocol},
	}
	header := http.Header{}
	if token != "" {
		dialer.Subprotocols = append(dialer.Subprotocols, tokenProtocol(token))
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

// Start sends a start command. cmd.Command is set for the caller.
func (c *Client) Start(cmd Command) error {
	cmd.Command = CommandStart
	return c.write(cmd)
}

// Abort asks the server to abort the running benchmark.
func (c *Client) Abort() error {
	return c.write(Command{Command: CommandAbort})
}

// Next reads the next message from the server.
func (c *Client) Next() (engine.Message, error) {
	var m engine.Message
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// Run starts a benchmark and hands every message to fn until the run ends.
// Cancelling ctx sends an abort. A remote error message is returned as an
// error.
func (c *Client) Run(ctx context.Context, cmd Command, fn func(engine.Message)) error {
	if err := c.Start(cmd); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.Abort()
	})
	defer stop()
	for {
		m, err := c.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if fn != nil {
			fn(m)
		}
		switch m.Type {
		case engine.PhaseDone.String():
			return nil
		case engine.PhaseError.String():
			if m.Message == "" {
				return errors.New("remote run failed")
			}
			return errors.New(m.Message)
		}
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
