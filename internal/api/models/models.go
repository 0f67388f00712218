package models

import (
	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/logging"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.1" doc:"Go runtime version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Status models
type ConnectionData struct {
	State               string `json:"state" example:"connected" doc:"Connection manager state"`
	Status              int    `json:"status" example:"0" doc:"Last connect result status code, -1 before any attempt"`
	Offline             bool   `json:"offline" example:"false" doc:"Whether the camera is offline"`
	Attempts            uint64 `json:"attempts" example:"3" doc:"Connect attempts since start"`
	Failures            uint64 `json:"failures" example:"2" doc:"Failed connect attempts since start"`
	Reconnects          uint64 `json:"reconnects" example:"1" doc:"Sessions ended by offline or reconnect requests"`
	ConsecutiveFailures uint64 `json:"consecutive_failures" example:"0" doc:"Failures since the last successful connect"`
}

type FeedData struct {
	State   string `json:"state" example:"feeding" doc:"Feed controller state"`
	Feeding bool   `json:"feeding" example:"true" doc:"Whether the consumer wants data"`
}

type FrameData struct {
	Frames    uint64 `json:"frames" example:"1500" doc:"Frames received from the camera"`
	KeyFrames uint64 `json:"key_frames" example:"50" doc:"Key frames received"`
	Bytes     uint64 `json:"bytes" example:"7340032" doc:"Frame bytes received"`
	LastPTS   string `json:"last_pts" example:"1m0.04s" doc:"Presentation time of the last frame"`
	LastFrame string `json:"last_frame_at,omitempty" example:"2025-01-27T10:30:00Z" doc:"When the last frame arrived"`
}

type StatusData struct {
	CameraID   string         `json:"camera_id" example:"cam1" doc:"Camera identifier"`
	Connection ConnectionData `json:"connection" doc:"Camera connection"`
	Feed       FeedData       `json:"feed" doc:"Consumer feed"`
	Frames     FrameData      `json:"frames" doc:"Frame counters"`
	Cache      cache.Stats    `json:"cache" doc:"Cache occupancy and counters"`
	Shutdown   bool           `json:"shutdown" example:"false" doc:"Whether shutdown has begun"`
}

type StatusResponse struct {
	Body StatusData
}

// Reconnect models
type ReconnectData struct {
	Message string `json:"message" example:"Reconnect requested" doc:"Result message"`
}

type ReconnectResponse struct {
	Body ReconnectData
}

// Log models
type LogsInput struct {
	Module string `query:"module" example:"connection" doc:"Only entries from this module"`
	Level  string `query:"level" enum:"debug,info,warn,error" default:"debug" doc:"Minimum level"`
	Limit  int    `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Maximum number of entries, newest last"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries in chronological order"`
	Count   int                `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelRequestData struct {
	Module string `json:"module" example:"connection" doc:"Logger module"`
	Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
}

type LogLevelRequest struct {
	Body LogLevelRequestData
}

type LogLevelData struct {
	Module  string   `json:"module" example:"connection" doc:"Logger module"`
	Level   string   `json:"level" example:"debug" doc:"Level now in effect"`
	Modules []string `json:"modules" doc:"Modules with a logger"`
}

type LogLevelResponse struct {
	Body LogLevelData
}
