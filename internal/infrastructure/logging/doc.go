// Package logging provides structured logging for the subsystem runtime.
//
// It wraps log/slog so every component logs with the same handler and
// default fields:
//
//   - JSON output for production, text for development
//   - service and version on every record
//   - trace_id and span_id when logged with a traced context
//   - level filtering (debug, info, warn, error)
//
// Configured from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Runtime packages take a *slog.Logger; pass logger.Logger.
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", cfg.API.Port)
//
// Never log secrets, tokens or passwords.
package logging
