package bridge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camfeed/internal/config"
	"github.com/smazurov/camfeed/internal/connection"
	"github.com/smazurov/camfeed/internal/consumer"
	"github.com/smazurov/camfeed/internal/events"
)

type recordingNotifier struct {
	mu       sync.Mutex
	ready    bool
	stopping bool
	statuses []string
}

func (n *recordingNotifier) Ready() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = true
}

func (n *recordingNotifier) Status(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

func (n *recordingNotifier) Stopping() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopping = true
}

func writeClip(t *testing.T, dir string, size int) (string, []byte) {
	t.Helper()
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	path := filepath.Join(dir, "clip.h264")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, payload
}

func fileConfig(src string, target consumer.Target) Config {
	return Config{
		Camera: config.CameraConfig{
			ID:       "cam1",
			Kind:     "file",
			URL:      src,
			FileRate: time.Millisecond,
		},
		CacheSize: 1 << 20,
		Consumer:  target,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBridgeDeliversFileToConsumer(t *testing.T) {
	dir := t.TempDir()
	src, payload := writeClip(t, dir, 64*1024)
	out := filepath.Join(dir, "out.h264")

	notifier := &recordingNotifier{}
	b, err := New(fileConfig(src, consumer.Target{Output: out}), events.New(), notifier)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	waitFor(t, 5*time.Second, func() bool {
		info, err := os.Stat(out)
		return err == nil && info.Size() >= int64(len(payload))
	})

	b.Shutdown("test finished")
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[:len(payload)], payload) {
		t.Error("consumer output does not start with the clip bytes in order")
	}

	if !b.Session().Cache.Closed() {
		t.Error("cache should be closed after shutdown")
	}
	if b.Manager().State() != connection.StateShuttingDown {
		t.Errorf("expected shutting_down, got %s", b.Manager().State())
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if !notifier.ready || !notifier.stopping {
		t.Errorf("expected ready and stopping notifications, got ready=%v stopping=%v", notifier.ready, notifier.stopping)
	}
	if !slices.Contains(notifier.statuses, "camera cam1: connected") {
		t.Errorf("missing connected status in %v", notifier.statuses)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeClip(t, dir, 4096)

	b, err := New(fileConfig(src, consumer.Target{Output: filepath.Join(dir, "out")}), events.New(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool {
		return b.Session().Snapshot().Frames > 0
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if b.Coordinator().Reason() != "context cancelled" {
		t.Errorf("unexpected reason %q", b.Coordinator().Reason())
	}
}

func TestConsumerFailureStopsBridge(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeClip(t, dir, 16*1024)

	b, err := New(fileConfig(src, consumer.Target{Command: "false"}), events.New(), nil)
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error when the consumer dies")
		}
	case <-time.After(10 * time.Second):
		b.Shutdown("test timeout")
		t.Fatal("bridge kept running after the consumer exited")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeClip(t, dir, 16)
	out := consumer.Target{Output: filepath.Join(dir, "out")}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"policy", func(c *Config) { c.CachePolicy = "spill" }},
		{"cache size", func(c *Config) { c.CacheSize = -1 }},
		{"codec", func(c *Config) { c.Camera.Codec = "vp9" }},
		{"kind", func(c *Config) { c.Camera.Kind = "usb" }},
		{"url", func(c *Config) { c.Camera.URL = "" }},
		{"consumer", func(c *Config) { c.Consumer = consumer.Target{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fileConfig(src, out)
			tt.mutate(&cfg)
			if _, err := New(cfg, events.New(), nil); err == nil {
				t.Error("expected New to fail")
			}
		})
	}
}

func TestApplyCameraConfig(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeClip(t, dir, 16)
	cfg := fileConfig(src, consumer.Target{Output: filepath.Join(dir, "out")})

	b, err := New(cfg, events.New(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.ApplyCameraConfig(cfg.Camera); err != nil {
		t.Fatalf("unchanged config: %v", err)
	}

	bad := cfg.Camera
	bad.Codec = "vp9"
	if err := b.ApplyCameraConfig(bad); err == nil {
		t.Error("expected an invalid codec to be rejected")
	}

	next := cfg.Camera
	next.ID = "renamed"
	next.Password = "secret"
	if err := b.ApplyCameraConfig(next); err != nil {
		t.Fatalf("changed config: %v", err)
	}
	if b.camera.ID != "cam1" {
		t.Errorf("camera id should stay pinned, got %q", b.camera.ID)
	}
	if b.camera.Password != "secret" {
		t.Error("new password was not applied")
	}

	b.Shutdown("test")
	next.Password = "other"
	if err := b.ApplyCameraConfig(next); !errors.Is(err, connection.ErrShutdown) {
		t.Errorf("expected ErrShutdown after shutdown, got %v", err)
	}
}
