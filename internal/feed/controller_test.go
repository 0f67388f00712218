package feed

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/session"
)

type recordingSink struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func (s *recordingSink) Push(_ context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = append(s.data, chunk...)
	return nil
}

func (s *recordingSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

type countingSource struct {
	cache *cache.Cache
	reads atomic.Int64
}

func (s *countingSource) ReadContext(ctx context.Context, p []byte) (int, error) {
	s.reads.Add(1)
	return s.cache.ReadContext(ctx, p)
}

func newCache(t *testing.T, size int) *cache.Cache {
	t.Helper()
	c, err := cache.New(size, cache.PolicyOverwrite)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func startController(t *testing.T, c *Controller) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPausedControllerNeverPulls(t *testing.T) {
	cch := newCache(t, 64)
	src := &countingSource{cache: cch}
	sink := &recordingSink{}
	c := New(Options{Source: src, Sink: sink})

	if c.State() != StatePaused {
		t.Fatalf("initial state = %s, want paused", c.State())
	}
	startController(t, c)

	if _, err := cch.Write([]byte("frame")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if n := src.reads.Load(); n != 0 {
		t.Errorf("paused controller pulled %d times", n)
	}
	if cch.Available() != 5 {
		t.Errorf("cache bytes were consumed while paused")
	}
}

func TestNeedDataDrainsCacheInOrder(t *testing.T) {
	cch := newCache(t, 64)
	sess := session.New("cam1", cch, nil)
	sink := &recordingSink{}
	c := New(Options{Session: sess, Source: cch, Sink: sink, ChunkSize: 3})
	startController(t, c)

	want := []byte("0123456789abcdef")
	if _, err := cch.Write(want); err != nil {
		t.Fatal(err)
	}
	c.NeedData()
	if !sess.Feeding() {
		t.Error("session feed flag not set after NeedData")
	}

	waitFor(t, time.Second, func() bool { return len(sink.bytes()) == len(want) })
	if got := sink.bytes(); !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPauseAndResumeLosesNothing(t *testing.T) {
	cch := newCache(t, 64)
	sink := &recordingSink{}
	c := New(Options{Source: cch, Sink: sink, ChunkSize: 4})
	startController(t, c)

	c.NeedData()
	if _, err := cch.Write([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return len(sink.bytes()) == 4 })

	c.EnoughData()
	c.EnoughData()
	if c.State() != StatePaused {
		t.Fatalf("state = %s, want paused", c.State())
	}

	if _, err := cch.Write([]byte("efgh")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := sink.bytes(); string(got) != "abcd" {
		t.Fatalf("pushed while paused: %q", got)
	}

	c.NeedData()
	c.NeedData()
	waitFor(t, time.Second, func() bool { return len(sink.bytes()) == 8 })
	if got := sink.bytes(); string(got) != "abcdefgh" {
		t.Errorf("got %q, want %q", got, "abcdefgh")
	}
}

func TestRunStopsWhenCacheCloses(t *testing.T) {
	cch := newCache(t, 16)
	c := New(Options{Source: cch, Sink: &recordingSink{}})
	_, done := startController(t, c)
	c.NeedData()

	time.Sleep(20 * time.Millisecond)
	if err := cch.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cache close")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cch := newCache(t, 16)
	c := New(Options{Source: cch, Sink: &recordingSink{}})
	cancel, done := startController(t, c)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsPushError(t *testing.T) {
	cch := newCache(t, 16)
	boom := errors.New("consumer gone")
	c := New(Options{Source: cch, Sink: &recordingSink{err: boom}})
	_, done := startController(t, c)

	c.NeedData()
	if _, err := cch.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run returned %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after push error")
	}
}
