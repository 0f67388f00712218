// Package consumer is the pull side of the bridge: a bounded ingest queue
// that raises need-data and enough-data signals, drained into a sink such
// as a decoder subprocess.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/smazurov/camfeed/internal/metrics"
)

// DefaultMaxBytes is the queued byte count at which enough-data is raised.
const DefaultMaxBytes = 200000

// ErrQueueClosed is returned by Push once Run has returned.
var ErrQueueClosed = errors.New("consumer queue closed")

// Signals receives the consumer's backpressure notifications.
type Signals interface {
	NeedData()
	EnoughData()
}

// Consumer is the pull-based downstream end of the bridge.
type Consumer interface {
	SetSignals(s Signals)
	Push(ctx context.Context, chunk []byte) error
	Run(ctx context.Context) error
}

var _ Consumer = (*Queue)(nil)

// Queue buffers pushed chunks and writes them to w in order.
//
// Push never blocks. When the queued byte count reaches maxBytes the queue
// raises EnoughData; once a saturated queue has been drained completely it
// raises NeedData. Run raises NeedData once when it starts.
type Queue struct {
	w        io.Writer
	maxBytes int
	logger   *slog.Logger

	mu        sync.Mutex
	signals   Signals
	chunks    [][]byte
	queued    int
	saturated bool
	closed    bool
	dataCh    chan struct{}
}

// NewQueue creates a queue writing to w. A maxBytes of zero or less selects
// DefaultMaxBytes.
func NewQueue(w io.Writer, maxBytes int, logger *slog.Logger) *Queue {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Queue{
		w:        w,
		maxBytes: maxBytes,
		logger:   logger,
		dataCh:   make(chan struct{}, 1),
	}
}

// SetSignals connects the queue to the component that reacts to its
// backpressure signals. It must be called before Run.
func (q *Queue) SetSignals(s Signals) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.signals = s
}

// Push enqueues chunk. The queue takes ownership of the slice.
func (q *Queue) Push(_ context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.chunks = append(q.chunks, chunk)
	q.queued += len(chunk)
	metrics.SetConsumerQueued(q.queued)

	if q.queued >= q.maxBytes && !q.saturated {
		q.saturated = true
		q.logger.Debug("Consumer queue full", "queued", q.queued, "max_bytes", q.maxBytes)
		q.raise("enough-data")
	}

	select {
	case q.dataCh <- struct{}{}:
	default:
	}
	return nil
}

// Queued returns the number of bytes waiting to be written.
func (q *Queue) Queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued
}

// Run drains the queue into the writer until ctx is cancelled, which is a
// clean stop, or a write fails, which is returned.
func (q *Queue) Run(ctx context.Context) error {
	defer q.close()

	q.mu.Lock()
	q.raise("need-data")
	q.mu.Unlock()

	for {
		chunk, err := q.next(ctx)
		if err != nil {
			return nil
		}

		if _, err := q.w.Write(chunk); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write to consumer: %w", err)
		}
		metrics.AddConsumerWritten(len(chunk))

		q.mu.Lock()
		if q.queued == 0 && q.saturated {
			q.saturated = false
			q.logger.Debug("Consumer queue drained")
			q.raise("need-data")
		}
		q.mu.Unlock()
	}
}

// next pops the oldest chunk, waiting for one if the queue is empty.
func (q *Queue) next(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			chunk := q.chunks[0]
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
			q.queued -= len(chunk)
			metrics.SetConsumerQueued(q.queued)
			q.mu.Unlock()
			return chunk, nil
		}
		q.mu.Unlock()

		select {
		case <-q.dataCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// raise delivers a signal. Caller must hold q.mu so signals keep their order.
func (q *Queue) raise(signal string) {
	metrics.RecordConsumerSignal(signal)
	if q.signals == nil {
		return
	}
	if signal == "need-data" {
		q.signals.NeedData()
	} else {
		q.signals.EnoughData()
	}
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.chunks = nil
	q.queued = 0
	metrics.SetConsumerQueued(0)
}
