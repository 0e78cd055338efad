// Package logging provides structured logging for SolarWatch Core.
//
// The Logger type is a thin facade over go.uber.org/zap so the rest of the
// code base logs with plain key-value pairs and never imports zap directly.
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
//	logger.Info("starting service", "port", 8080)
//	logger.Warn("auth failed", "device", id, "remote", addr)
//
// Never log device secrets or SMTP credentials.
package logging
