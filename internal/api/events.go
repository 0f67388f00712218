package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camfeed/internal/events"
)

// registerSSERoutes registers the bridge lifecycle event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time camera connection, feed and shutdown events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-discovered":        events.CameraDiscoveredEvent{},
		"camera-connected":         events.CameraConnectedEvent{},
		"camera-connect-failed":    events.CameraConnectFailedEvent{},
		"camera-offline":           events.CameraOfflineEvent{},
		"connection-state-changed": events.ConnectionStateChangedEvent{},
		"feed-state-changed":       events.FeedStateChangedEvent{},
		"shutdown-requested":       events.ShutdownRequestedEvent{},
		"bridge-stats":             events.BridgeStatsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		if s.options.EventBus == nil {
			return
		}
		eventCh := make(chan any, 32)

		bus := s.options.EventBus
		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraDiscoveredEvent](bus, eventCh),
			events.SubscribeToChannel[events.CameraConnectedEvent](bus, eventCh),
			events.SubscribeToChannel[events.CameraConnectFailedEvent](bus, eventCh),
			events.SubscribeToChannel[events.CameraOfflineEvent](bus, eventCh),
			events.SubscribeToChannel[events.ConnectionStateChangedEvent](bus, eventCh),
			events.SubscribeToChannel[events.FeedStateChangedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ShutdownRequestedEvent](bus, eventCh),
			events.SubscribeToChannel[events.BridgeStatsEvent](bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
