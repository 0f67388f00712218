package cmd

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/camera"
	"github.com/smazurov/camfeed/internal/config"
	"github.com/smazurov/camfeed/internal/connection"
	"github.com/smazurov/camfeed/internal/consumer"
	"github.com/smazurov/camfeed/internal/feed"
	"github.com/smazurov/camfeed/internal/logging"
)

// Options for the CLI - flat structure with toml mapping. Flag names are
// derived from field names (CameraURL -> --camera-url) so config.LoadConfig
// can tell which fields were set on the command line.
type Options struct {
	Config string

	// Camera settings
	CameraID            string        `toml:"camera.id" env:"CAMERA_ID"`
	CameraKind          string        `toml:"camera.kind" env:"CAMERA_KIND"`
	CameraURL           string        `toml:"camera.url" env:"CAMERA_URL"`
	CameraUsername      string        `toml:"camera.username" env:"CAMERA_USERNAME"`
	CameraPassword      string        `toml:"camera.password" env:"CAMERA_PASSWORD"`
	CameraCodec         string        `toml:"camera.codec" env:"CAMERA_CODEC"`
	CameraRetryInterval time.Duration `toml:"camera.retry_interval" env:"CAMERA_RETRY_INTERVAL"`
	CameraFileRate      time.Duration `toml:"camera.file_rate" env:"CAMERA_FILE_RATE"`

	// Cache settings
	CacheSizeBytes int    `toml:"cache.size_bytes" env:"CACHE_SIZE_BYTES"`
	CachePolicy    string `toml:"cache.policy" env:"CACHE_POLICY"`

	// Feed settings
	FeedChunkSize int `toml:"feed.chunk_size" env:"FEED_CHUNK_SIZE"`

	// Consumer settings
	ConsumerCommand  string `toml:"consumer.command" env:"CONSUMER_COMMAND"`
	ConsumerOutput   string `toml:"consumer.output" env:"CONSUMER_OUTPUT"`
	ConsumerMaxBytes int    `toml:"consumer.max_bytes" env:"CONSUMER_MAX_BYTES"`

	// Server settings
	ServerEnabled bool   `toml:"server.enabled" env:"SERVER_ENABLED"`
	ServerPort    string `toml:"server.port" env:"SERVER_PORT"`

	// Features settings
	FeaturesLEDControl bool   `toml:"features.led_control" env:"FEATURES_LED_CONTROL"`
	FeaturesLEDName    string `toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Auth settings
	AuthUsername string `toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBridge     string `toml:"logging.bridge" env:"LOGGING_BRIDGE"`
	LoggingConnection string `toml:"logging.connection" env:"LOGGING_CONNECTION"`
	LoggingCamera     string `toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingFeed       string `toml:"logging.feed" env:"LOGGING_FEED"`
	LoggingConsumer   string `toml:"logging.consumer" env:"LOGGING_CONSUMER"`
	LoggingProcess    string `toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingAPI        string `toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig     string `toml:"logging.config" env:"LOGGING_CONFIG"`
}

// DefaultOptions returns the built-in defaults, the lowest precedence layer.
func DefaultOptions() *Options {
	return &Options{
		Config:              "config.toml",
		CameraID:            "camera0",
		CameraKind:          camera.KindRTSP,
		CameraUsername:      camera.DefaultUsername,
		CameraPassword:      camera.DefaultPassword,
		CameraRetryInterval: connection.DefaultBackoff,
		CameraFileRate:      camera.DefaultFileRate,
		CacheSizeBytes:      cache.DefaultCapacity,
		CachePolicy:         string(cache.PolicyOverwrite),
		FeedChunkSize:       feed.DefaultChunkSize,
		ConsumerMaxBytes:    consumer.DefaultMaxBytes,
		ServerPort:          ":8090",
		AuthUsername:        "admin",
		AuthPassword:        "password",
		LoggingLevel:        "info",
		LoggingFormat:       "text",
	}
}

// BindFlags registers one flag per option on fs.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Config, "config", "c", o.Config, "Path to configuration file")
	o.bindCameraFlags(fs)

	fs.IntVar(&o.CacheSizeBytes, "cache-size-bytes", o.CacheSizeBytes, "Ring buffer capacity in bytes")
	fs.StringVar(&o.CachePolicy, "cache-policy", o.CachePolicy, "Overflow policy (overwrite, block)")

	fs.IntVar(&o.FeedChunkSize, "feed-chunk-size", o.FeedChunkSize, "Bytes pulled from the cache per push")

	fs.StringVar(&o.ConsumerCommand, "consumer-command", o.ConsumerCommand, "Command that reads the stream on stdin")
	fs.StringVar(&o.ConsumerOutput, "consumer-output", o.ConsumerOutput, "File to write the stream to, - for stdout")
	fs.IntVar(&o.ConsumerMaxBytes, "consumer-max-bytes", o.ConsumerMaxBytes, "Queued bytes that raise enough-data")

	fs.BoolVar(&o.ServerEnabled, "server-enabled", o.ServerEnabled, "Serve the HTTP status API")
	fs.StringVar(&o.ServerPort, "server-port", o.ServerPort, "HTTP listen address")

	fs.BoolVar(&o.FeaturesLEDControl, "features-led-control", o.FeaturesLEDControl, "Show the connection state on a status LED")
	fs.StringVar(&o.FeaturesLEDName, "features-led-name", o.FeaturesLEDName, "sysfs LED name; detected from the board when empty")

	fs.StringVar(&o.AuthUsername, "auth-username", o.AuthUsername, "Basic auth username")
	fs.StringVar(&o.AuthPassword, "auth-password", o.AuthPassword, "Basic auth password")

	fs.StringVar(&o.LoggingLevel, "logging-level", o.LoggingLevel, "Global logging level (debug, info, warn, error)")
	fs.StringVar(&o.LoggingFormat, "logging-format", o.LoggingFormat, "Logging format (text, json)")
	fs.StringVar(&o.LoggingBridge, "logging-bridge", o.LoggingBridge, "Bridge logging level")
	fs.StringVar(&o.LoggingConnection, "logging-connection", o.LoggingConnection, "Connection manager logging level")
	fs.StringVar(&o.LoggingCamera, "logging-camera", o.LoggingCamera, "Camera logging level")
	fs.StringVar(&o.LoggingFeed, "logging-feed", o.LoggingFeed, "Feed controller logging level")
	fs.StringVar(&o.LoggingConsumer, "logging-consumer", o.LoggingConsumer, "Consumer logging level")
	fs.StringVar(&o.LoggingProcess, "logging-process", o.LoggingProcess, "Consumer process output logging level")
	fs.StringVar(&o.LoggingAPI, "logging-api", o.LoggingAPI, "API logging level")
	fs.StringVar(&o.LoggingConfig, "logging-config", o.LoggingConfig, "Config watcher logging level")
}

func (o *Options) bindCameraFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.CameraID, "camera-id", o.CameraID, "Camera identifier")
	fs.StringVar(&o.CameraKind, "camera-kind", o.CameraKind, "Camera source kind (rtsp, file)")
	fs.StringVar(&o.CameraURL, "camera-url", o.CameraURL, "Camera URL or file path; {id} expands to the camera id")
	fs.StringVar(&o.CameraUsername, "camera-username", o.CameraUsername, "Camera username")
	fs.StringVar(&o.CameraPassword, "camera-password", o.CameraPassword, "Camera password")
	fs.StringVar(&o.CameraCodec, "camera-codec", o.CameraCodec, "Preferred codec (h264, h265); empty accepts either")
	fs.DurationVar(&o.CameraRetryInterval, "camera-retry-interval", o.CameraRetryInterval, "Wait between failed connect attempts")
	fs.DurationVar(&o.CameraFileRate, "camera-file-rate", o.CameraFileRate, "Delay between chunks when replaying a file")
}

// LoggingSettings maps the logging options onto logging.Config. Empty module
// levels inherit the global level.
func (o *Options) LoggingSettings() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"bridge":     o.LoggingBridge,
			"connection": o.LoggingConnection,
			"camera":     o.LoggingCamera,
			"feed":       o.LoggingFeed,
			"consumer":   o.LoggingConsumer,
			"process":    o.LoggingProcess,
			"api":        o.LoggingAPI,
			"config":     o.LoggingConfig,
		},
	}
}

// CameraSettings returns the reloadable camera section.
func (o *Options) CameraSettings() config.CameraConfig {
	return config.CameraConfig{
		Config:        o.Config,
		ID:            o.CameraID,
		Kind:          o.CameraKind,
		URL:           o.CameraURL,
		Username:      o.CameraUsername,
		Password:      o.CameraPassword,
		Codec:         o.CameraCodec,
		RetryInterval: o.CameraRetryInterval,
		FileRate:      o.CameraFileRate,
	}
}

// ConsumerTarget returns where the stream is delivered.
func (o *Options) ConsumerTarget() consumer.Target {
	return consumer.Target{Command: o.ConsumerCommand, Output: o.ConsumerOutput}
}

// pinFlagged restores camera fields that were set on the command line, so a
// reloaded file cannot override them.
func (o *Options) pinFlagged(next config.CameraConfig, fs *pflag.FlagSet) config.CameraConfig {
	pins := []struct {
		flag  string
		apply func()
	}{
		{"camera-id", func() { next.ID = o.CameraID }},
		{"camera-kind", func() { next.Kind = o.CameraKind }},
		{"camera-url", func() { next.URL = o.CameraURL }},
		{"camera-username", func() { next.Username = o.CameraUsername }},
		{"camera-password", func() { next.Password = o.CameraPassword }},
		{"camera-codec", func() { next.Codec = o.CameraCodec }},
		{"camera-retry-interval", func() { next.RetryInterval = o.CameraRetryInterval }},
		{"camera-file-rate", func() { next.FileRate = o.CameraFileRate }},
	}
	for _, p := range pins {
		if fs.Changed(p.flag) {
			p.apply()
		}
	}
	return next
}
