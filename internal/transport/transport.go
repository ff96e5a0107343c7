// Package transport implements the HTTP side of a benchmark: latency
// probes, download streams and upload chunks against a speed-test server.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NodePath81/hyperspeed/internal/clock"
	"github.com/NodePath81/hyperspeed/internal/util"
)

const (
	PathPing     = "/ping"
	PathDownload = "/download"
	PathUpload   = "/upload"
	PathControl  = "/control"
	PathIdentity = "/identity"
	PathSessions = "/sessions"

	defaultProbeTimeout = 2 * time.Second
	defaultDialTimeout  = 3 * time.Second
	maxIdleConns        = 16
)

// ErrPermanent marks responses that retrying will not fix.
var ErrPermanent = errors.New("permanent transport failure")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// Permanent reports whether the status is a client error (4xx).
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500
}

func (e *StatusError) Unwrap() error {
	if e.Permanent() {
		return ErrPermanent
	}
	return nil
}

// Options configures an HTTP transport. Zero values use defaults.
type Options struct {
	ProbeTimeout time.Duration
	DialTimeout  time.Duration
	// SocketBuffer sets SO_RCVBUF and SO_SNDBUF on every connection when > 0.
	SocketBuffer int
	Clock        clock.Clock
}

// HTTP talks to a speed-test server over plain HTTP.
type HTTP struct {
	base         string
	client       *http.Client
	probeTimeout time.Duration
	clock        clock.Clock
}

// New builds a transport for host:port.
func New(host string, port int, opts Options) *HTTP {
	return NewWithBaseURL("http://"+util.NetJoin(host, port), opts)
}

// NewWithBaseURL builds a transport for an explicit base URL such as the
// one returned by httptest.Server.
func NewWithBaseURL(base string, opts Options) *HTTP {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	dialer := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: 30 * time.Second,
		Control:   socketControl(opts.SocketBuffer),
	}
	rt := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		DisableCompression:  true,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTP{
		base:         strings.TrimRight(base, "/"),
		client:       &http.Client{Transport: rt},
		probeTimeout: opts.ProbeTimeout,
		clock:        opts.Clock,
	}
}

// Probe measures one GET /ping round trip, bounded by the probe timeout.
func (t *HTTP) Probe(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+PathPing, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	start := t.clock.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	rtt := clock.Since(t.clock, start)
	if resp.StatusCode/100 != 2 {
		return 0, &StatusError{Op: "probe", Code: resp.StatusCode}
	}
	return rtt, nil
}

// OpenDownloadStream issues GET /download and returns the response body.
// The stream ends when ctx is cancelled.
func (t *HTTP) OpenDownloadStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+PathDownload, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, &StatusError{Op: "download", Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// SendUploadChunk POSTs chunk to /upload and waits for the response.
func (t *HTTP) SendUploadChunk(ctx context.Context, chunk []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+PathUpload, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Op: "upload", Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (t *HTTP) Close() {
	t.client.CloseIdleConnections()
}

// Payload returns size bytes of the deterministic pattern i%256.
func Payload(size int) []byte {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	return buf
}
