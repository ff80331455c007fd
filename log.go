package inflight

import (
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used by the engine. A nil logger restores
// slog.Default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

// Logger returns the engine logger.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
