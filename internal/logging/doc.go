// Package logging provides structured logging with per-module log levels.
//
// Every record goes to stdout (text or json), to the systemd journal when
// journald is reachable, and to an in-memory ring buffer that backs the
// /api/logs endpoint.
//
// Initialize once at startup, then fetch loggers by module name:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"connection": "debug"},
//	})
//
//	logger := logging.GetLogger("connection").With("camera_id", id)
//	logger.Info("Camera connected", "status", status)
//
// Loggers fetched before Initialize are kept and pick up the configured
// level afterwards.
//
// Journal records carry SYSLOG_IDENTIFIER=camfeed:
//
//	journalctl -t camfeed -f
//	journalctl -t camfeed MODULE=connection CAMERA_ID=cam1
package logging
