package handler

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// defaultLogger receives internal errors surfaced by handlers.
// Set during server startup via SetLogger.
var defaultLogger atomic.Pointer[zap.Logger]

// SetLogger sets the package-level logger.
// Call this during server startup before handling requests.
func SetLogger(l *zap.Logger) {
	defaultLogger.Store(l.Named("http"))
}

func logger() *zap.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}
