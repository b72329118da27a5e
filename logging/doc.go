// Package logging provides a minimal logging interface and adapters for the
// concierge runtime.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that sessions, flows and tools use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - SessionLogger with session / agent scoped attributes and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	sess, err := session.New(func(o *session.Options) { o.Logger = logger })
//
// Messages are dotted event names ("tool.call.start") followed by key/value pairs.
package logging
