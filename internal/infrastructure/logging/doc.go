// Package logging wraps log/slog with the daemon's conventions: JSON
// or text output, a configurable level, and service/version fields on
// every entry. Subsystems get tagged child loggers via WithComponent,
// so one pipeline run can be filtered out of the combined stream.
//
// Configured from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log tokens or other secrets; truncate identifiers where a
// prefix is enough.
package logging
