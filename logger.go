package timer

import "log/slog"

// Logger is the logging interface used by servers and clients.
// *slog.Logger satisfies it, and so does the zap adapter the binaries install.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns slog's default logger.
func defaultLogger() Logger {
	return slog.Default()
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
