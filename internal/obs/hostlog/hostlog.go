// Package hostlog adapts the core's synchronous error-reporting hooks
// (livequery subscriber failures, adaptive-indexing notices) onto
// whatever sink a host process wants, defaulting to slog.
package hostlog

import "log/slog"

// Sink receives a reported error; msg carries no trailing punctuation.
type Sink func(msg string, err error)

// Default reports through the given logger (slog.Default() if nil).
func Default(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return func(msg string, err error) {
		if err != nil {
			logger.Error(msg, "error", err)
			return
		}
		logger.Warn(msg)
	}
}
