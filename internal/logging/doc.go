// Package logging assembles structured slog loggers and formatting helpers used
// across theli.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run identifiers, stage codes, and folder roles. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// User-facing progress lines are printed by the reduction reporter; this
// package carries the diagnostic stream that ends up in the state directory.
package logging
