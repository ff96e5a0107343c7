package engine

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/NodePath81/hyperspeed/internal/clock"
)

const (
	// DefaultChunkSize is the upload payload size and the download read buffer.
	DefaultChunkSize = 1 << 20
	readBufferSize   = 64 << 10
)

// retryDelay is the fixed pause after a failed request. It does not grow.
var retryDelay = 10 * time.Millisecond

// worker moves data in one direction until its context ends. Only the
// worker writes its counter; the aggregator reads it.
type worker struct {
	id        int
	direction Direction
	transport Transport
	chunk     []byte

	bytes    atomic.Int64
	reached  atomic.Bool
	failures atomic.Int64
}

func newWorker(id int, dir Direction, t Transport, chunk []byte) *worker {
	return &worker{id: id, direction: dir, transport: t, chunk: chunk}
}

// run loops until ctx is done. Transient failures are retried; a permanent
// failure is returned and ends the phase.
func (w *worker) run(ctx context.Context) error {
	var buf []byte
	if w.direction == DirectionDownload {
		buf = make([]byte, readBufferSize)
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		var err error
		if w.direction == DirectionDownload {
			err = w.download(ctx, buf)
		} else {
			err = w.upload(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			continue
		}
		if isPermanent(err) {
			return err
		}
		w.failures.Add(1)
		if clock.Sleep(ctx, retryDelay) != nil {
			return nil
		}
	}
}

// download drains one stream. Bytes of a partial read that races
// cancellation are still counted.
func (w *worker) download(ctx context.Context, buf []byte) error {
	body, err := w.transport.OpenDownloadStream(ctx)
	if err != nil {
		return err
	}
	defer body.Close()
	w.reached.Store(true)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			w.bytes.Add(int64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (w *worker) upload(ctx context.Context) error {
	if err := w.transport.SendUploadChunk(ctx, w.chunk); err != nil {
		return err
	}
	w.reached.Store(true)
	w.bytes.Add(int64(len(w.chunk)))
	return nil
}

func (w *worker) Bytes() int64 { return w.bytes.Load() }
