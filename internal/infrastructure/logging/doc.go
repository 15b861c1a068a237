// Package logging provides structured logging for Lumy Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across every component.
//
// # Features
//
//   - JSON output for production (journald / log shipping)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("display refreshed", "duration_ms", 1830)
//
// # Security
//
// Never log WiFi passphrases, the cloud API key, or MQTT passwords.
// Log the SSID when a network is configured, nothing more.
package logging
