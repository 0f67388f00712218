// Package exporters publishes bridge counters outside Prometheus.
package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/camfeed/internal/events"
	"github.com/smazurov/camfeed/internal/session"
)

// DefaultInterval is how often stats are published.
const DefaultInterval = time.Second

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Snapshotter is satisfied by *session.Session.
type Snapshotter interface {
	Snapshot() session.Snapshot
}

// SSEExporter periodically publishes a BridgeStatsEvent so SSE clients see
// cache and frame counters without polling /api/status.
type SSEExporter struct {
	eventBus EventPublisher
	source   Snapshotter
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter. A non-positive interval selects
// DefaultInterval.
func NewSSEExporter(eventBus EventPublisher, source Snapshotter, interval time.Duration) *SSEExporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SSEExporter{
		eventBus: eventBus,
		source:   source,
		interval: interval,
	}
}

// Start begins the export loop. It stops when ctx is cancelled or Stop is called.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish()
		}
	}
}

func (s *SSEExporter) publish() {
	snap := s.source.Snapshot()
	s.eventBus.Publish(events.BridgeStatsEvent{
		CameraID:       snap.CameraID,
		Status:         snap.Status,
		Offline:        snap.Offline,
		Feeding:        snap.Feeding,
		Frames:         snap.Frames,
		CacheAvailable: snap.Cache.Available,
		CacheWritten:   snap.Cache.Written,
		CacheDropped:   snap.Cache.Dropped,
		Timestamp:      time.Now().Format(time.RFC3339),
	})
}
