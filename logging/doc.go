// Package logging provides a minimal logging interface and adapters for
// Agentloom.
//
// The Logger interface defines the methods (Debug, Info, Warn, Error) the
// runner, flows and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RunLogger with per-session / per-run contextual helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// The interface is intentionally small so callers can plug any structured
// logger that speaks key/value pairs.
package logging
