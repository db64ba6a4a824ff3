package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	opLogger.Store(slog.New(handler))
}

// Op returns the operational logger shared by the daemon, the request path
// and the maintenance loops.
func Op() *slog.Logger {
	return opLogger.Load()
}

// Component returns the operational logger tagged with a component name,
// e.g. "reaper" or "pagecache".
func Component(name string) *slog.Logger {
	return opLogger.Load().With("component", name)
}

// SetLevelFromString sets the log level from a string.
// Valid values: "debug", "info", "warn", "error". Unknown values are ignored.
func SetLevelFromString(level string) {
	if l, ok := ParseLevel(level); ok {
		logLevel.Set(l)
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug, true
	case "info", "INFO", "":
		return slog.LevelInfo, true
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, true
	case "error", "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
