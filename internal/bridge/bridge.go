// Package bridge assembles the cache, camera connection, feed controller and
// consumer into one running pipeline with ordered shutdown.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/camera"
	"github.com/smazurov/camfeed/internal/config"
	"github.com/smazurov/camfeed/internal/connection"
	"github.com/smazurov/camfeed/internal/consumer"
	"github.com/smazurov/camfeed/internal/events"
	"github.com/smazurov/camfeed/internal/feed"
	"github.com/smazurov/camfeed/internal/logging"
	"github.com/smazurov/camfeed/internal/metrics/exporters"
	"github.com/smazurov/camfeed/internal/session"
	"github.com/smazurov/camfeed/internal/shutdown"
)

// Notifier receives service lifecycle updates. *systemd.Notifier implements it.
type Notifier interface {
	Ready()
	Status(status string)
	Stopping()
}

// Config is everything needed to build a bridge.
type Config struct {
	Camera           config.CameraConfig
	CacheSize        int
	CachePolicy      string
	ChunkSize        int
	Consumer         consumer.Target
	ConsumerMaxBytes int
	// StatsInterval paces BridgeStatsEvent publication; zero uses the exporter default.
	StatsInterval time.Duration
	Clock         clock.Clock
}

// Bridge owns one camera to consumer pipeline.
type Bridge struct {
	coord   *shutdown.Coordinator
	session *session.Session
	cache   *cache.Cache
	sink    io.WriteCloser
	queue   *consumer.Queue
	feed    *feed.Controller
	manager *connection.Manager
	stats   *exporters.SSEExporter
	bus     *events.Bus
	notify  Notifier
	logger  *slog.Logger

	cfgMu   sync.Mutex
	camera  config.CameraConfig
	factory atomic.Pointer[camera.Factory]
	clock   clock.Clock
}

// New builds the pipeline. Failing to allocate the cache, to configure the
// camera or to open the consumer is fatal; anything already opened is
// released before returning.
func New(cfg Config, bus *events.Bus, notify Notifier) (*Bridge, error) {
	logger := logging.GetLogger("bridge")
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	policy, err := cache.ParsePolicy(cfg.CachePolicy)
	if err != nil {
		return nil, err
	}
	size := cfg.CacheSize
	if size == 0 {
		size = cache.DefaultCapacity
	}
	c, err := cache.New(size, policy)
	if err != nil {
		return nil, fmt.Errorf("allocate cache: %w", err)
	}

	b := &Bridge{
		coord:  shutdown.New(logger),
		cache:  c,
		bus:    bus,
		notify: notify,
		logger: logger,
		camera: cfg.Camera,
		clock:  cfg.Clock,
	}
	b.session = session.New(cfg.Camera.ID, c, b.coord)

	factory, err := b.newFactory(cfg.Camera)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("configure camera: %w", err), c.Close())
	}
	b.factory.Store(&factory)

	b.sink, err = consumer.OpenSink(cfg.Consumer, logging.GetLogger("consumer"), logging.GetLogger("process"))
	if err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	codec, _ := camera.NormalizeCodec(cfg.Camera.Codec)
	logger.Info("Consumer opened", "target", cfg.Consumer.String(), "caps", camera.MimeType(codec))

	b.queue = consumer.NewQueue(b.sink, cfg.ConsumerMaxBytes, logging.GetLogger("consumer"))
	b.feed = feed.New(feed.Options{
		Session:   b.session,
		Source:    c,
		Sink:      b.queue,
		ChunkSize: cfg.ChunkSize,
		Bus:       bus,
		Logger:    logging.GetLogger("feed"),
	})
	b.queue.SetSignals(b.feed)

	b.manager, err = connection.New(connection.Options{
		Session: b.session,
		Factory: b.createCamera,
		Params: connection.Params{
			ID:       cfg.Camera.ID,
			Username: cfg.Camera.Username,
			Password: cfg.Camera.Password,
		},
		Backoff: cfg.Camera.RetryInterval,
		Clock:   cfg.Clock,
		Bus:     bus,
		Logger:  logging.GetLogger("connection"),
		OnStateChange: func(_, to connection.State) {
			if notify != nil {
				notify.Status("camera " + cfg.Camera.ID + ": " + string(to))
			}
		},
	})
	if err != nil {
		return nil, multierr.Combine(err, b.sink.Close(), c.Close())
	}

	b.stats = exporters.NewSSEExporter(bus, b.session, cfg.StatsInterval)

	b.coord.OnShutdown(shutdown.StageCache, func() {
		if notify != nil {
			notify.Stopping()
		}
		bus.Publish(events.ShutdownRequestedEvent{
			Reason:    b.coord.Reason(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		_ = c.Close()
	})
	return b, nil
}

// Session returns the shared session state.
func (b *Bridge) Session() *session.Session { return b.session }

// Manager returns the connection manager.
func (b *Bridge) Manager() *connection.Manager { return b.manager }

// Feed returns the feed controller.
func (b *Bridge) Feed() *feed.Controller { return b.feed }

// Coordinator returns the shutdown coordinator.
func (b *Bridge) Coordinator() *shutdown.Coordinator { return b.coord }

// Shutdown starts an orderly shutdown. It is safe to call more than once.
func (b *Bridge) Shutdown(reason string) { b.coord.Shutdown(reason) }

// Run starts every goroutine and blocks until shutdown completes. It returns
// an error when the consumer or the feed failed; a shutdown requested through
// ctx, SIGINT or Shutdown is not an error.
func (b *Bridge) Run(ctx context.Context) error {
	stopSignals := b.coord.NotifyOnInterrupt()
	defer stopSignals()
	stopCtx := context.AfterFunc(ctx, func() { b.coord.Shutdown("context cancelled") })
	defer stopCtx()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures error
	)
	fail := func(component string, err error) {
		b.logger.Error("Component failed, shutting down", "component", component, "error", err)
		mu.Lock()
		failures = multierr.Append(failures, fmt.Errorf("%s: %w", component, err))
		mu.Unlock()
		b.coord.Shutdown(component + " failed")
	}

	b.stats.Start(b.coord.Context(shutdown.StageConsumer))
	defer b.stats.Stop()

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := b.manager.Run(b.coord.Context(shutdown.StageRetry)); err != nil {
			fail("connection", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := b.feed.Run(b.coord.Context(shutdown.StageConsumer)); err != nil {
			fail("feed", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := b.queue.Run(b.coord.Context(shutdown.StageConsumer)); err != nil {
			fail("consumer", err)
		}
	}()

	b.logger.Info("Bridge running", "camera_id", b.session.CameraID)
	if b.notify != nil {
		b.notify.Ready()
	}

	<-b.coord.Done()
	wg.Wait()

	if err := b.sink.Close(); err != nil {
		b.logger.Warn("Failed to close consumer", "error", err)
	}
	b.logger.Info("Bridge stopped", "reason", b.coord.Reason())

	mu.Lock()
	defer mu.Unlock()
	return failures
}

// ApplyCameraConfig reacts to a reloaded [camera] section. The next connect
// attempt uses the new settings; identity, credential, source or codec
// changes also drop the current session and reconnect immediately.
func (b *Bridge) ApplyCameraConfig(next config.CameraConfig) error {
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()

	if next.ID != b.camera.ID {
		b.logger.Warn("Camera id change needs a restart to rename the session", "current", b.camera.ID, "configured", next.ID)
		next.ID = b.camera.ID
	}
	factory, err := b.newFactory(next)
	if err != nil {
		return fmt.Errorf("reload camera config: %w", err)
	}
	changed := b.camera.SessionChanged(next)
	b.factory.Store(&factory)
	b.camera = next

	if !changed {
		b.logger.Debug("Camera config reloaded without session changes")
		return nil
	}

	b.logger.Info("Camera config changed, reconnecting")
	return b.manager.RequestReconnect(connection.Params{
		ID:       next.ID,
		Username: next.Username,
		Password: next.Password,
	})
}

func (b *Bridge) newFactory(cfg config.CameraConfig) (camera.Factory, error) {
	return camera.NewFactory(camera.Options{
		Kind:     cfg.Kind,
		URL:      cfg.URL,
		Codec:    cfg.Codec,
		FileRate: cfg.FileRate,
		Clock:    b.clock,
		Logger:   logging.GetLogger("camera"),
	})
}

// createCamera delegates to the factory in effect for this attempt.
func (b *Bridge) createCamera(id string) (camera.Camera, error) {
	return (*b.factory.Load())(id)
}
