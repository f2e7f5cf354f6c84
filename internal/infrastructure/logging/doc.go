// Package logging provides structured logging for govee2mqtt.
//
// The logger wraps log/slog. Every entry carries the service name and
// build version, and components add their own "component" attribute via
// With.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The legacy top-level "debug: true" switch forces the debug level.
//
// Never log the Govee API key or MQTT password. Use Redact when a hint of
// the value is useful:
//
//	logger.Info("vendor client ready", "api_key", logging.Redact(cfg.Govee.APIKey))
package logging
