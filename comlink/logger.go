package comlink

import "log/slog"

// slogLogger is the default Logger, grounded on the teacher's stdLogger/
// NewDefaultLogger in crawler.go: a thin namespace-tagging wrapper over
// the standard structured logger.
type slogLogger struct {
	base *slog.Logger
}

// NewDefaultLogger returns the default Logger backed by slog.Default().
func NewDefaultLogger() Logger {
	return &slogLogger{base: slog.Default()}
}

func (l *slogLogger) Debug(namespace, msg string, args ...any) {
	l.base.Debug(msg, append([]any{"namespace", namespace}, args...)...)
}

func (l *slogLogger) Info(namespace, msg string, args ...any) {
	l.base.Info(msg, append([]any{"namespace", namespace}, args...)...)
}

func (l *slogLogger) Warning(namespace, msg string, args ...any) {
	l.base.Warn(msg, append([]any{"namespace", namespace}, args...)...)
}

func (l *slogLogger) Error(namespace, msg string, args ...any) {
	l.base.Error(msg, append([]any{"namespace", namespace}, args...)...)
}
