package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// File replay defaults.
const (
	DefaultFileRate      = 40 * time.Millisecond
	DefaultFileChunkSize = 4096
)

// FileOptions configures a FileCamera.
type FileOptions struct {
	Codec     string
	Rate      time.Duration
	ChunkSize int
	Clock     clock.Clock
	Logger    *slog.Logger
}

// FileCamera replays a raw elementary stream file in fixed-size chunks.
// Reaching the end of the file takes the camera offline.
type FileCamera struct {
	id   string
	path string
	opts FileOptions

	mu        sync.Mutex
	file      *os.File
	onOffline func(error)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewFileCamera creates a file source. Zero options take their defaults.
func NewFileCamera(id, path string, opts FileOptions) *FileCamera {
	if opts.Rate <= 0 {
		opts.Rate = DefaultFileRate
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultFileChunkSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Codec == "" {
		opts.Codec = codecFromPath(path)
	}
	opts.Logger = opts.Logger.With("camera_id", id)
	return &FileCamera{id: id, path: path, opts: opts}
}

// ID returns the camera identifier.
func (c *FileCamera) ID() string { return c.id }

// Connect opens the file. Credentials are ignored.
func (c *FileCamera) Connect(_ context.Context, params ConnectParams) error {
	f, err := os.Open(c.path)
	if err != nil {
		if params.OnConnect != nil {
			params.OnConnect(StatusFailed)
		}
		return &ConnectError{Status: StatusFailed, Err: err}
	}

	if params.OnDiscover != nil {
		detail := c.path
		if info, err := f.Stat(); err == nil {
			detail = fmt.Sprintf("%s (%d bytes)", c.path, info.Size())
		}
		params.OnDiscover(Discovery{CameraID: c.id, Codec: c.opts.Codec, Detail: detail})
	}

	c.mu.Lock()
	c.file = f
	c.onOffline = params.OnOffline
	c.mu.Unlock()

	if params.OnConnect != nil {
		params.OnConnect(StatusOK)
	}
	return nil
}

// StartReceiving delivers one chunk per tick until EOF or Disconnect.
func (c *FileCamera) StartReceiving(handler FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return ErrNotConnected
	}
	if c.done != nil {
		return errors.New("already receiving")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.replay(ctx, c.file, handler, c.done)
	return nil
}

func (c *FileCamera) replay(ctx context.Context, f *os.File, handler FrameHandler, done chan struct{}) {
	defer close(done)

	ticker := c.opts.Clock.Ticker(c.opts.Rate)
	defer ticker.Stop()

	buf := make([]byte, c.opts.ChunkSize)
	var pts time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(f, buf)
		if n > 0 {
			handler(Frame{Data: buf[:n], PTS: pts})
			pts += c.opts.Rate
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		if ctx.Err() != nil {
			return
		}
		c.opts.Logger.Info("File source finished", "error", err)
		c.mu.Lock()
		offline := c.onOffline
		c.mu.Unlock()
		if offline != nil {
			offline(err)
		}
		return
	}
}

// Disconnect stops the replay and closes the file.
func (c *FileCamera) Disconnect() error {
	c.mu.Lock()
	f, cancel, done := c.file, c.cancel, c.done
	c.file, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func codecFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h264", ".264", ".avc":
		return "h264"
	default:
		return "h265"
	}
}
