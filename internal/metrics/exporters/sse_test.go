package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/events"
	"github.com/smazurov/camfeed/internal/session"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{published: make(chan struct{}, 100)}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	c, err := cache.New(64, cache.PolicyOverwrite)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return session.New("cam1", c, nil)
}

func TestSSEExporterPublishesStats(t *testing.T) {
	sess := newTestSession(t)
	if _, err := sess.Cache.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	sess.RecordFrame(session.Frame{Size: 10, KeyFrame: true})
	sess.FeedFlag().Store(true)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, sess, 20*time.Millisecond)
	exporter.Start(context.Background())

	select {
	case <-mock.published:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stats publish")
	}
	exporter.Stop()

	evts := mock.getEvents()
	stats, ok := evts[0].(events.BridgeStatsEvent)
	if !ok {
		t.Fatalf("expected BridgeStatsEvent, got %T", evts[0])
	}
	if stats.CameraID != "cam1" || stats.Frames != 1 || !stats.Feeding {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.CacheAvailable != 10 || stats.CacheWritten != 10 {
		t.Errorf("unexpected cache counters: %+v", stats)
	}
}

func TestSSEExporterStopsWithContext(t *testing.T) {
	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, newTestSession(t), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		exporter.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancel")
	}

	n := len(mock.getEvents())
	time.Sleep(50 * time.Millisecond)
	if len(mock.getEvents()) != n {
		t.Error("exporter kept publishing after stop")
	}
}

func TestNewSSEExporterDefaultInterval(t *testing.T) {
	if e := NewSSEExporter(newMockEventBus(), nil, 0); e.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", e.interval, DefaultInterval)
	}
}
