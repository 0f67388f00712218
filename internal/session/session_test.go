package session

import (
	"testing"
	"time"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/shutdown"
)

func TestNewSessionInitialState(t *testing.T) {
	c, err := cache.New(64, cache.PolicyOverwrite)
	if err != nil {
		t.Fatal(err)
	}
	s := New("cam1", c, shutdown.New(nil))

	snap := s.Snapshot()
	if snap.Status != StatusNone {
		t.Errorf("Status = %d, want %d", snap.Status, StatusNone)
	}
	if !snap.Offline {
		t.Error("a new session should start offline")
	}
	if snap.Feeding || snap.Shutdown {
		t.Errorf("unexpected flags: %+v", snap)
	}
	if snap.Cache.Capacity != 64 {
		t.Errorf("cache capacity = %d", snap.Cache.Capacity)
	}
	if !snap.LastFrameAt.IsZero() {
		t.Error("LastFrameAt should be zero before any frame")
	}
}

func TestSessionFlagsAndCounters(t *testing.T) {
	s := New("cam1", nil, nil)

	s.SetStatus(0)
	s.SetOffline(false)
	s.FeedFlag().Store(true)
	s.RecordFrame(Frame{Size: 100, PTS: time.Second, KeyFrame: true})
	s.RecordFrame(Frame{Size: 20, PTS: 2 * time.Second})

	snap := s.Snapshot()
	if snap.Status != 0 || snap.Offline || !snap.Feeding {
		t.Errorf("unexpected flags: %+v", snap)
	}
	if snap.Frames != 2 || snap.KeyFrames != 1 || snap.FrameBytes != 120 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.LastPTS != 2*time.Second {
		t.Errorf("LastPTS = %v", snap.LastPTS)
	}
	if snap.LastFrameAt.IsZero() {
		t.Error("LastFrameAt should be set")
	}
}
