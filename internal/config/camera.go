package config

import "time"

// CameraConfig is the reloadable [camera] section of the config file.
// A field named Config holds the file path so LoadConfig can read it.
type CameraConfig struct {
	Config string

	ID            string        `toml:"camera.id" env:"CAMERA_ID"`
	Kind          string        `toml:"camera.kind" env:"CAMERA_KIND"`
	URL           string        `toml:"camera.url" env:"CAMERA_URL"`
	Username      string        `toml:"camera.username" env:"CAMERA_USERNAME"`
	Password      string        `toml:"camera.password" env:"CAMERA_PASSWORD"`
	Codec         string        `toml:"camera.codec" env:"CAMERA_CODEC"`
	RetryInterval time.Duration `toml:"camera.retry_interval" env:"CAMERA_RETRY_INTERVAL"`
	FileRate      time.Duration `toml:"camera.file_rate" env:"CAMERA_FILE_RATE"`
}

// CameraLoader returns a loader for Watcher that starts every reload from
// base, so keys removed from the file fall back to the startup values.
func CameraLoader(base CameraConfig) func(path string) (CameraConfig, error) {
	return func(path string) (CameraConfig, error) {
		cfg := base
		cfg.Config = path
		if err := LoadConfig(&cfg, nil); err != nil {
			return CameraConfig{}, err
		}
		return cfg, nil
	}
}

// SessionChanged reports whether switching from c to other requires a new
// camera session.
func (c CameraConfig) SessionChanged(other CameraConfig) bool {
	return c.ID != other.ID ||
		c.Kind != other.Kind ||
		c.URL != other.URL ||
		c.Username != other.Username ||
		c.Password != other.Password ||
		c.Codec != other.Codec
}
