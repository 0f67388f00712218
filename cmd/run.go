package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/camfeed/internal/api"
	"github.com/smazurov/camfeed/internal/bridge"
	"github.com/smazurov/camfeed/internal/config"
	"github.com/smazurov/camfeed/internal/events"
	"github.com/smazurov/camfeed/internal/led"
	"github.com/smazurov/camfeed/internal/logging"
	"github.com/smazurov/camfeed/internal/metrics"
	"github.com/smazurov/camfeed/internal/systemd"
	"github.com/smazurov/camfeed/internal/version"
)

const serverStopTimeout = 5 * time.Second

// CreateRunCmd creates the run command, which is also the default action.
func CreateRunCmd() *cobra.Command {
	opts := DefaultOptions()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bridge the camera stream to the consumer",
		Long: `Connects to the configured camera, buffers its stream in a fixed-size ring ` +
			`and feeds the consumer whenever it asks for data. Failed connects are retried ` +
			`until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			if err := config.LoadConfig(opts, c); err != nil {
				slog.Warn("Failed to load config", "error", err)
			}
			logging.Initialize(opts.LoggingSettings())
			logger := logging.GetLogger("main")

			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGTERM)
			defer stop()

			if err := Run(ctx, opts, c.Flags()); err != nil {
				logger.Error("Bridge failed", "error", err)
				stop()
				os.Exit(1)
			}
		},
	}

	opts.BindFlags(cmd.Flags())
	return cmd
}

// Run builds the bridge from opts and blocks until it shuts down. flags, when
// not nil, marks camera settings that config reloads must not override.
func Run(ctx context.Context, opts *Options, flags *pflag.FlagSet) error {
	logger := logging.GetLogger("main")
	logger.Info("Starting camfeed", "version", version.String(), "camera_id", opts.CameraID, "kind", opts.CameraKind)

	eventBus := events.New()
	notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

	b, err := bridge.New(bridge.Config{
		Camera:           opts.CameraSettings(),
		CacheSize:        opts.CacheSizeBytes,
		CachePolicy:      opts.CachePolicy,
		ChunkSize:        opts.FeedChunkSize,
		Consumer:         opts.ConsumerTarget(),
		ConsumerMaxBytes: opts.ConsumerMaxBytes,
	}, eventBus, notifier)
	if err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	if opts.FeaturesLEDControl {
		ledLogger := logging.GetLogger("led")
		indicator := led.NewIndicator(led.New(opts.FeaturesLEDName, ledLogger), eventBus, ledLogger)
		indicator.Start()
		defer indicator.Stop()
	}

	var server *api.Server
	if opts.ServerEnabled {
		server = api.NewServer(&api.Options{
			AuthUsername:   opts.AuthUsername,
			AuthPassword:   opts.AuthPassword,
			Session:        b.Session(),
			Connection:     b.Manager(),
			Feed:           b.Feed(),
			EventBus:       eventBus,
			MetricsHandler: metrics.Handler(),
		})
		go func() {
			logger.Info("Starting HTTP server", "port", opts.ServerPort)
			if startErr := server.Start(opts.ServerPort); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				b.Shutdown("http server failed")
			}
		}()
	}

	if opts.Config != "" {
		watcher := config.NewConfigWatcher(opts.Config, config.CameraLoader(opts.CameraSettings()), logging.GetLogger("config"))
		watcher.OnReload(func(next config.CameraConfig) {
			if flags != nil {
				next = opts.pinFlagged(next, flags)
			}
			if applyErr := b.ApplyCameraConfig(next); applyErr != nil {
				logger.Warn("Failed to apply camera config", "error", applyErr)
			}
		})
		if startErr := watcher.Start(); startErr != nil {
			logger.Warn("Config hot reload disabled", "error", startErr)
		} else {
			defer func() {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}()
		}
	}

	runErr := b.Run(ctx)

	if server != nil {
		logger.Info("Shutting down HTTP server")
		stopCtx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		if stopErr := server.Stop(stopCtx); stopErr != nil {
			logger.Error("Error stopping HTTP server", "error", stopErr)
		}
	}
	return runErr
}
