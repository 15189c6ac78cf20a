// Package logging assembles structured slog loggers and formatting helpers used
// across lofi services.
//
// It owns the console and JSON handlers, rotates the daemon log file through
// lumberjack, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, stages, caller keys, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
