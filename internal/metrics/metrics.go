// Package metrics provides Prometheus metrics for the camera bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "camfeed"

var (
	cacheWrittenBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "written_bytes_total",
		Help:      "Bytes written into the frame cache",
	}, []string{"camera_id"})

	cacheDroppedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "dropped_bytes_total",
		Help:      "Oldest bytes discarded by the overwrite policy",
	}, []string{"camera_id"})

	cacheOccupiedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "occupied_bytes",
		Help:      "Bytes currently buffered in the frame cache",
	}, []string{"camera_id"})

	cameraFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_total",
		Help:      "Frames received from the camera",
	}, []string{"camera_id", "key_frame"})

	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "attempts_total",
		Help:      "Camera connect attempts",
	}, []string{"camera_id"})

	connectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "failures_total",
		Help:      "Failed camera connect attempts",
	}, []string{"camera_id"})

	offlineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "offline_total",
		Help:      "Offline notifications from a connected camera",
	}, []string{"camera_id"})

	connectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "state",
		Help:      "1 for the current connection manager state, 0 otherwise",
	}, []string{"camera_id", "state"})

	feedActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "active",
		Help:      "1 while the consumer wants data",
	}, []string{"camera_id"})

	feedPushedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "pushed_bytes_total",
		Help:      "Bytes pulled from the cache and pushed to the consumer",
	}, []string{"camera_id"})

	consumerQueuedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "queued_bytes",
		Help:      "Bytes waiting in the consumer ingest queue",
	})

	consumerWrittenBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "written_bytes_total",
		Help:      "Bytes delivered to the consumer sink",
	})

	consumerSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "signals_total",
		Help:      "Backpressure signals raised by the consumer",
	}, []string{"signal"})
)

// Handler returns the Prometheus HTTP handler for all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCacheWrite accounts one frame written into the cache.
func RecordCacheWrite(cameraID string, written, dropped, occupied int) {
	cacheWrittenBytes.WithLabelValues(cameraID).Add(float64(written))
	if dropped > 0 {
		cacheDroppedBytes.WithLabelValues(cameraID).Add(float64(dropped))
	}
	cacheOccupiedBytes.WithLabelValues(cameraID).Set(float64(occupied))
}

// SetCacheOccupied updates the cache occupancy gauge.
func SetCacheOccupied(cameraID string, occupied int) {
	cacheOccupiedBytes.WithLabelValues(cameraID).Set(float64(occupied))
}

// RecordFrame counts a received camera frame.
func RecordFrame(cameraID string, keyFrame bool) {
	key := "false"
	if keyFrame {
		key = "true"
	}
	cameraFrames.WithLabelValues(cameraID, key).Inc()
}

// RecordConnectAttempt counts a connect attempt and its outcome.
func RecordConnectAttempt(cameraID string, ok bool) {
	connectAttempts.WithLabelValues(cameraID).Inc()
	if !ok {
		connectFailures.WithLabelValues(cameraID).Inc()
	}
}

// RecordOffline counts an offline notification.
func RecordOffline(cameraID string) {
	offlineTotal.WithLabelValues(cameraID).Inc()
}

// SetConnectionState marks state as current among all known states.
func SetConnectionState(cameraID, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(cameraID, s).Set(v)
	}
}

// SetFeedActive updates the feed state gauge.
func SetFeedActive(cameraID string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	feedActive.WithLabelValues(cameraID).Set(v)
}

// AddFeedPushed counts bytes handed to the consumer.
func AddFeedPushed(cameraID string, n int) {
	feedPushedBytes.WithLabelValues(cameraID).Add(float64(n))
}

// SetConsumerQueued updates the consumer queue gauge.
func SetConsumerQueued(n int) {
	consumerQueuedBytes.Set(float64(n))
}

// AddConsumerWritten counts bytes written to the consumer sink.
func AddConsumerWritten(n int) {
	consumerWrittenBytes.Add(float64(n))
}

// RecordConsumerSignal counts a need-data or enough-data signal.
func RecordConsumerSignal(signal string) {
	consumerSignals.WithLabelValues(signal).Inc()
}
