// Package camera defines the producer side of the bridge: a camera session
// that delivers compressed video frames through a callback on its own
// goroutine, plus the RTSP and file implementations.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// Default credentials used when none are configured.
const (
	DefaultUsername = "admin"
	DefaultPassword = "888888"
)

// Connect result status codes. RTSP cameras report the server's response
// code for rejected requests instead of StatusFailed.
const (
	StatusOK      = 0
	StatusFailed  = -1
	StatusNoTrack = -2
)

// Supported source kinds.
const (
	KindRTSP = "rtsp"
	KindFile = "file"
)

// Frame is one unit of compressed video delivered by a camera. Data is an
// Annex-B byte stream and is only valid for the duration of the callback.
type Frame struct {
	Data     []byte
	PTS      time.Duration
	KeyFrame bool
}

// FrameHandler receives frames on the camera's goroutine.
type FrameHandler func(Frame)

// Discovery describes the media a camera offers.
type Discovery struct {
	CameraID string
	Codec    string
	Detail   string
}

// ConnectParams carries credentials and notification callbacks for Connect.
// Callbacks may be nil.
type ConnectParams struct {
	ID       string
	Username string
	Password string

	OnDiscover func(Discovery)
	OnConnect  func(status int)
	OnOffline  func(reason error)
}

// ConnectError is returned by Connect for any non-zero connect status.
type ConnectError struct {
	Status int
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed (status %d): %v", e.Status, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Camera is a single camera session. A Camera is used for one connect and
// released with Disconnect; reconnecting creates a new one.
type Camera interface {
	ID() string
	// Connect establishes the session and reports the outcome through
	// params.OnConnect before returning.
	Connect(ctx context.Context, params ConnectParams) error
	// StartReceiving begins frame delivery. OnOffline fires at most once,
	// when the session ends without Disconnect having been called.
	StartReceiving(handler FrameHandler) error
	Disconnect() error
}

// Factory creates a camera for an identifier.
type Factory func(id string) (Camera, error)

// Options selects and configures the camera implementation.
type Options struct {
	Kind string
	// URL is the RTSP URL or the file path. "{id}" is replaced with the
	// camera identifier.
	URL   string
	Codec string
	// FileRate is the delay between chunks for file sources.
	FileRate      time.Duration
	FileChunkSize int
	Clock         clock.Clock
	Logger        *slog.Logger
}

// NewFactory validates opts and returns a factory for its kind.
func NewFactory(opts Options) (Factory, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("camera url is required")
	}
	codec, err := NormalizeCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	opts.Codec = codec

	switch strings.ToLower(opts.Kind) {
	case "", KindRTSP:
		return func(id string) (Camera, error) {
			return NewRTSPCamera(id, expandURL(opts.URL, id), opts.Codec, opts.Logger), nil
		}, nil
	case KindFile:
		return func(id string) (Camera, error) {
			return NewFileCamera(id, expandURL(opts.URL, id), FileOptions{
				Codec:     opts.Codec,
				Rate:      opts.FileRate,
				ChunkSize: opts.FileChunkSize,
				Clock:     opts.Clock,
				Logger:    opts.Logger,
			}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown camera kind %q", opts.Kind)
	}
}

func expandURL(raw, id string) string {
	return strings.ReplaceAll(raw, "{id}", id)
}

// NormalizeCodec maps configuration spellings to "h264", "h265" or "" (any).
func NormalizeCodec(codec string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "":
		return "", nil
	case "h264", "avc":
		return "h264", nil
	case "h265", "hevc":
		return "h265", nil
	default:
		return "", fmt.Errorf("unsupported codec %q", codec)
	}
}

// MimeType returns the byte-stream caps string for a codec.
func MimeType(codec string) string {
	if codec == "h264" {
		return "video/x-h264"
	}
	return "video/x-h265"
}
