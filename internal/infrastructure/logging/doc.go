// Package logging provides structured logging for the room sync service.
//
// It wraps the standard log/slog package so every component logs with the
// same handler, level filter and default fields (service, version).
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
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("sync complete", "bridge", "living-room", "changed", 3)
//	logger.Warn("bridge storage file not found", "path", path)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
