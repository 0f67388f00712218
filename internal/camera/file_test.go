package camera

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileCameraReplaysAndGoesOffline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.h264")
	payload := []byte("0123456789")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatal(err)
	}

	cam := NewFileCamera("cam1", path, FileOptions{Rate: time.Millisecond, ChunkSize: 4})

	var (
		mu      sync.Mutex
		got     []byte
		status  = 99
		codec   string
		offline = make(chan error, 1)
	)
	err := cam.Connect(context.Background(), ConnectParams{
		OnDiscover: func(d Discovery) { codec = d.Codec },
		OnConnect:  func(s int) { status = s },
		OnOffline:  func(err error) { offline <- err },
	})
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusOK || codec != "h264" {
		t.Fatalf("status = %d codec = %q", status, codec)
	}

	if err := cam.StartReceiving(func(f Frame) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Data...)
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-offline:
		if !errors.Is(err, io.EOF) {
			t.Errorf("offline reason = %v, want EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("file camera never went offline")
	}

	mu.Lock()
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
	mu.Unlock()

	if err := cam.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
}

func TestFileCameraMissingFile(t *testing.T) {
	cam := NewFileCamera("cam1", filepath.Join(t.TempDir(), "missing.h265"), FileOptions{})

	status := 99
	err := cam.Connect(context.Background(), ConnectParams{OnConnect: func(s int) { status = s }})
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Status != StatusFailed {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if status != StatusFailed {
		t.Errorf("connect callback status = %d", status)
	}
	if err := cam.StartReceiving(func(Frame) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("StartReceiving = %v, want ErrNotConnected", err)
	}
}

func TestFileCameraDisconnectStopsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.h265")
	if err := os.WriteFile(path, bytes.Repeat([]byte{1}, 1<<16), 0o600); err != nil {
		t.Fatal(err)
	}

	cam := NewFileCamera("cam1", path, FileOptions{Rate: time.Millisecond, ChunkSize: 16})
	offline := make(chan error, 1)
	if err := cam.Connect(context.Background(), ConnectParams{OnOffline: func(err error) { offline <- err }}); err != nil {
		t.Fatal(err)
	}
	if err := cam.StartReceiving(func(Frame) {}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := cam.Disconnect(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-offline:
		t.Errorf("offline fired after Disconnect: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}
