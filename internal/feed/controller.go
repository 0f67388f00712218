// Package feed moves bytes from the camera cache to the consumer while the
// consumer asks for data, and stops pulling when it has enough.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/events"
	"github.com/smazurov/camfeed/internal/metrics"
	"github.com/smazurov/camfeed/internal/session"
)

// DefaultChunkSize is the maximum number of bytes moved per pull.
const DefaultChunkSize = 4096

// State is the feed state.
type State string

// Feed states.
const (
	StatePaused  State = "paused"
	StateFeeding State = "feeding"
)

// Source is the cache side of the feed.
type Source interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// Sink is the consumer side of the feed. Push takes ownership of chunk.
type Sink interface {
	Push(ctx context.Context, chunk []byte) error
}

// Options configures a Controller.
type Options struct {
	Session   *session.Session
	Source    Source
	Sink      Sink
	ChunkSize int
	Bus       *events.Bus
	Logger    *slog.Logger
}

// Controller reacts to the consumer's need-data and enough-data signals.
//
// NeedData and EnoughData only flip the state; the pulling happens in Run.
// Pausing cancels a pull that is waiting on an empty cache, but a chunk that
// was already read is always pushed so no bytes are lost.
type Controller struct {
	session   *session.Session
	source    Source
	sink      Sink
	chunkSize int
	bus       *events.Bus
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	cancelPull context.CancelFunc
	wake       chan struct{}
}

// New creates a controller in the paused state.
func New(opts Options) *Controller {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Controller{
		session:   opts.Session,
		source:    opts.Source,
		sink:      opts.Sink,
		chunkSize: chunkSize,
		bus:       opts.Bus,
		logger:    logger,
		state:     StatePaused,
		wake:      make(chan struct{}, 1),
	}
	if c.session != nil {
		c.session.FeedFlag().Store(false)
	}
	return c
}

// NeedData starts or keeps feeding. Repeated calls are no-ops.
func (c *Controller) NeedData() {
	c.setState(StateFeeding)
}

// EnoughData pauses the feed. Repeated calls are no-ops.
func (c *Controller) EnoughData() {
	c.setState(StatePaused)
}

// State returns the current feed state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	feeding := next == StateFeeding
	if !feeding && c.cancelPull != nil {
		c.cancelPull()
	}
	c.mu.Unlock()

	if feeding {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}

	cameraID := ""
	if c.session != nil {
		c.session.FeedFlag().Store(feeding)
		cameraID = c.session.CameraID
	}
	c.logger.Debug("Feed state changed", "state", next)
	metrics.SetFeedActive(cameraID, feeding)
	c.bus.Publish(events.FeedStateChangedEvent{
		CameraID:  cameraID,
		Feeding:   feeding,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Run pulls chunks from the source and pushes them to the sink until ctx is
// cancelled or the source is closed, both of which end the feed cleanly.
// A push failure while ctx is still live is returned.
func (c *Controller) Run(ctx context.Context) error {
	buf := make([]byte, c.chunkSize)
	cameraID := ""
	if c.session != nil {
		cameraID = c.session.CameraID
	}

	for {
		pullCtx, ok := c.awaitFeeding(ctx)
		if !ok {
			return nil
		}

		n, err := c.source.ReadContext(pullCtx, buf)
		c.endPull()

		switch {
		case errors.Is(err, cache.ErrClosed):
			c.logger.Debug("Cache closed, feed stopping")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil && errors.Is(err, context.Canceled):
			// Paused while waiting for data.
			continue
		case err != nil:
			return fmt.Errorf("read cache: %w", err)
		}
		if n == 0 {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		if err := c.sink.Push(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("push to consumer: %w", err)
		}
		metrics.AddFeedPushed(cameraID, n)
		if a, ok := c.source.(interface{ Available() int }); ok {
			metrics.SetCacheOccupied(cameraID, a.Available())
		}
	}
}

// awaitFeeding blocks while paused and returns a context for one pull that
// a pause will cancel.
func (c *Controller) awaitFeeding(ctx context.Context) (context.Context, bool) {
	for {
		c.mu.Lock()
		if c.state == StateFeeding {
			pullCtx, cancel := context.WithCancel(ctx)
			c.cancelPull = cancel
			c.mu.Unlock()
			return pullCtx, true
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (c *Controller) endPull() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelPull != nil {
		c.cancelPull()
		c.cancelPull = nil
	}
}
