// Package session holds the per-bridge state shared by every component.
package session

import (
	"sync/atomic"
	"time"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/shutdown"
)

// StatusNone is the connection status before any connect attempt.
const StatusNone = -1

// Frame is the subset of a camera frame the session keeps counters for.
type Frame struct {
	Size     int
	PTS      time.Duration
	KeyFrame bool
}

// Session is created once at startup and passed by pointer to the
// connection manager, the feed controller and the API.
//
// The feed flag is written only by the feed controller and the shutdown
// flag only through the coordinator; everything else is read-mostly.
type Session struct {
	CameraID string
	Cache    *cache.Cache
	Shutdown *shutdown.Coordinator

	status    atomic.Int32
	offline   atomic.Bool
	feeding   atomic.Bool
	frames    atomic.Uint64
	keyFrames atomic.Uint64
	bytes     atomic.Uint64
	lastPTS   atomic.Int64
	lastFrame atomic.Int64
}

// New creates a session in its initial state: no connect attempt yet and
// the camera considered offline.
func New(cameraID string, c *cache.Cache, coord *shutdown.Coordinator) *Session {
	s := &Session{
		CameraID: cameraID,
		Cache:    c,
		Shutdown: coord,
	}
	s.status.Store(StatusNone)
	s.offline.Store(true)
	return s
}

// SetStatus records the last connect-result status code.
func (s *Session) SetStatus(status int) { s.status.Store(int32(status)) }

// Status returns the last connect-result status code.
func (s *Session) Status() int { return int(s.status.Load()) }

// SetOffline updates the offline flag.
func (s *Session) SetOffline(offline bool) { s.offline.Store(offline) }

// Offline reports whether the camera is currently offline.
func (s *Session) Offline() bool { return s.offline.Load() }

// FeedFlag exposes the feed-enabled flag to the feed controller.
func (s *Session) FeedFlag() *atomic.Bool { return &s.feeding }

// Feeding reports whether the consumer currently wants data.
func (s *Session) Feeding() bool { return s.feeding.Load() }

// RecordFrame updates the frame counters.
func (s *Session) RecordFrame(f Frame) {
	s.frames.Add(1)
	s.bytes.Add(uint64(f.Size))
	if f.KeyFrame {
		s.keyFrames.Add(1)
	}
	s.lastPTS.Store(int64(f.PTS))
	s.lastFrame.Store(time.Now().UnixNano())
}

// Snapshot is a consistent-enough copy of the session state for reporting.
type Snapshot struct {
	CameraID    string        `json:"camera_id"`
	Status      int           `json:"status"`
	Offline     bool          `json:"offline"`
	Feeding     bool          `json:"feeding"`
	Shutdown    bool          `json:"shutdown"`
	Frames      uint64        `json:"frames"`
	KeyFrames   uint64        `json:"key_frames"`
	FrameBytes  uint64        `json:"frame_bytes"`
	LastPTS     time.Duration `json:"last_pts"`
	LastFrameAt time.Time     `json:"last_frame_at,omitzero"`
	Cache       cache.Stats   `json:"cache"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		CameraID:   s.CameraID,
		Status:     s.Status(),
		Offline:    s.Offline(),
		Feeding:    s.Feeding(),
		Frames:     s.frames.Load(),
		KeyFrames:  s.keyFrames.Load(),
		FrameBytes: s.bytes.Load(),
		LastPTS:    time.Duration(s.lastPTS.Load()),
	}
	if s.Shutdown != nil {
		snap.Shutdown = s.Shutdown.Requested()
	}
	if ns := s.lastFrame.Load(); ns != 0 {
		snap.LastFrameAt = time.Unix(0, ns)
	}
	if s.Cache != nil {
		snap.Cache = s.Cache.Stats()
	}
	return snap
}
