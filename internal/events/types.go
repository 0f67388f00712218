package events

// Event type constants for kelindar/event.
const (
	TypeCameraDiscovered uint32 = iota + 1
	TypeCameraConnected
	TypeCameraConnectFailed
	TypeCameraOffline
	TypeConnectionStateChanged
	TypeFeedStateChanged
	TypeShutdownRequested
	TypeBridgeStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraDiscoveredEvent is published when the camera reports its media description.
type CameraDiscoveredEvent struct {
	CameraID  string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Codec     string `json:"codec" example:"h265" doc:"Video codec of the selected track"`
	Detail    string `json:"detail,omitempty" doc:"Source specific discovery detail"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraDiscoveredEvent.
func (e CameraDiscoveredEvent) Type() uint32 { return TypeCameraDiscovered }

// CameraConnectedEvent is published after a successful connect (status 0).
type CameraConnectedEvent struct {
	CameraID  string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Attempt   uint64 `json:"attempt" example:"1" doc:"Connect attempt number since start"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraConnectedEvent.
func (e CameraConnectedEvent) Type() uint32 { return TypeCameraConnected }

// CameraConnectFailedEvent is published for every failed connect attempt.
type CameraConnectFailedEvent struct {
	CameraID   string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Status     int    `json:"status" example:"-1" doc:"Connect result status code"`
	Error      string `json:"error" example:"connection refused" doc:"Failure description"`
	RetryAfter string `json:"retry_after" example:"30s" doc:"Delay before the next attempt"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraConnectFailedEvent.
func (e CameraConnectFailedEvent) Type() uint32 { return TypeCameraConnectFailed }

// CameraOfflineEvent is published when a connected camera goes away.
type CameraOfflineEvent struct {
	CameraID  string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Reason    string `json:"reason,omitempty" example:"EOF" doc:"Why the session ended"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraOfflineEvent.
func (e CameraOfflineEvent) Type() uint32 { return TypeCameraOffline }

// ConnectionStateChangedEvent tracks the connection manager state machine.
type ConnectionStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	From      string `json:"from" example:"connecting" doc:"Previous state"`
	To        string `json:"to" example:"connected" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionStateChangedEvent.
func (e ConnectionStateChangedEvent) Type() uint32 { return TypeConnectionStateChanged }

// FeedStateChangedEvent is published when the consumer pauses or resumes the feed.
type FeedStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Feeding   bool   `json:"feeding" example:"true" doc:"Whether the feed is pulling from the cache"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FeedStateChangedEvent.
func (e FeedStateChangedEvent) Type() uint32 { return TypeFeedStateChanged }

// ShutdownRequestedEvent is published once when shutdown begins.
type ShutdownRequestedEvent struct {
	Reason    string `json:"reason" example:"interrupt" doc:"What triggered shutdown"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ShutdownRequestedEvent.
func (e ShutdownRequestedEvent) Type() uint32 { return TypeShutdownRequested }

// BridgeStatsEvent is a periodic snapshot of the bridge counters.
type BridgeStatsEvent struct {
	CameraID       string `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Status         int    `json:"status" example:"0" doc:"Last connect result status code"`
	Offline        bool   `json:"offline" doc:"Whether the camera session has ended"`
	Feeding        bool   `json:"feeding" doc:"Whether the feed is pulling from the cache"`
	Frames         uint64 `json:"frames" example:"1200" doc:"Frames received since start"`
	CacheAvailable int    `json:"cache_available" example:"65536" doc:"Bytes buffered in the cache"`
	CacheWritten   uint64 `json:"cache_written_bytes" doc:"Bytes written to the cache since start"`
	CacheDropped   uint64 `json:"cache_dropped_bytes" doc:"Bytes discarded by the overwrite policy"`
	Timestamp      string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BridgeStatsEvent.
func (e BridgeStatsEvent) Type() uint32 { return TypeBridgeStats }
