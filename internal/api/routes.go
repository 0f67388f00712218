package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camfeed/internal/api/models"
	"github.com/smazurov/camfeed/internal/connection"
	"github.com/smazurov/camfeed/internal/version"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Bridge status",
		Description: "Connection state, feed state, frame counters and cache occupancy",
		Tags:        []string{"bridge"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "request-reconnect",
		Method:        http.MethodPost,
		Path:          "/api/reconnect",
		Summary:       "Reconnect camera",
		Description:   "Drop the current camera session and connect again without waiting for the backoff",
		Tags:          []string{"bridge"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 503},
	}, func(ctx context.Context, input *struct{}) (*models.ReconnectResponse, error) {
		if s.options.Connection == nil {
			return nil, huma.Error503ServiceUnavailable("connection manager not running")
		}
		if err := s.options.Connection.RequestReconnect(connection.Params{}); err != nil {
			if errors.Is(err, connection.ErrShutdown) {
				return nil, huma.Error503ServiceUnavailable("shutting down")
			}
			return nil, huma.Error500InternalServerError("reconnect failed", err)
		}
		return &models.ReconnectResponse{Body: models.ReconnectData{Message: "Reconnect requested"}}, nil
	})

	s.registerLogRoutes()
	s.registerSSERoutes()
}

func (s *Server) status() models.StatusData {
	var data models.StatusData

	if sess := s.options.Session; sess != nil {
		snap := sess.Snapshot()
		data.CameraID = snap.CameraID
		data.Connection.Status = snap.Status
		data.Connection.Offline = snap.Offline
		data.Feed.Feeding = snap.Feeding
		data.Shutdown = snap.Shutdown
		data.Cache = snap.Cache
		data.Frames = models.FrameData{
			Frames:    snap.Frames,
			KeyFrames: snap.KeyFrames,
			Bytes:     snap.FrameBytes,
			LastPTS:   snap.LastPTS.String(),
		}
		if !snap.LastFrameAt.IsZero() {
			data.Frames.LastFrame = snap.LastFrameAt.Format(time.RFC3339)
		}
	}

	if conn := s.options.Connection; conn != nil {
		stats := conn.Stats()
		data.Connection.State = string(stats.State)
		data.Connection.Attempts = stats.Attempts
		data.Connection.Failures = stats.Failures
		data.Connection.Reconnects = stats.Reconnects
		data.Connection.ConsecutiveFailures = stats.ConsecutiveFailures
	}

	if f := s.options.Feed; f != nil {
		data.Feed.State = string(f.State())
	}
	return data
}
