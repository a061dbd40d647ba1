// Package logging provides structured logging for the Kasa bridge.
//
// It wraps log/slog so every component logs the same way:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device bound", "channel", 14, "alias", "Kitchen")
//
// Never log MQTT or InfluxDB credentials.
package logging
