// Package logging provides structured logging for CDL Core.
//
// It wraps log/slog so every component logs with the same handler,
// level filtering and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("experiment queued", "experiment_id", id)
//
// Never log secrets, tokens or passwords.
package logging
