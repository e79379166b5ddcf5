// Package logging provides the Logger interface shared by every orchestrator
// package, backed by log/slog.
package logging

import (
	"fmt"
	"log/slog"
)

// Logger is the logging interface used throughout the orchestrator.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

type defaultLogger struct{ prefix string }

// Default returns a Logger that writes through slog, tagging every line
// with prefix (e.g. "alarm", "protocol").
func Default(prefix string) Logger {
	return defaultLogger{prefix: prefix}
}

func (d defaultLogger) ErrorPrintf(format string, args ...any) {
	slog.Error(d.prefix + ": " + fmt.Sprintf(format, args...))
}

func (d defaultLogger) WarnPrintf(format string, args ...any) {
	slog.Warn(d.prefix + ": " + fmt.Sprintf(format, args...))
}

func (d defaultLogger) InfoPrintf(format string, args ...any) {
	slog.Info(d.prefix + ": " + fmt.Sprintf(format, args...))
}

func (d defaultLogger) DebugPrintf(format string, args ...any) {
	slog.Debug(d.prefix + ": " + fmt.Sprintf(format, args...))
}

// Slog wraps an existing *slog.Logger as a Logger.
func Slog(l *slog.Logger, prefix string) Logger {
	return &slogLogger{Logger: l, prefix: prefix}
}

type slogLogger struct {
	*slog.Logger
	prefix string
}

func (s *slogLogger) ErrorPrintf(format string, args ...any) {
	s.Logger.Error(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) WarnPrintf(format string, args ...any) {
	s.Logger.Warn(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) InfoPrintf(format string, args ...any) {
	s.Logger.Info(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) DebugPrintf(format string, args ...any) {
	s.Logger.Debug(s.prefix + ": " + fmt.Sprintf(format, args...))
}

// noop discards everything; useful for quiet tests.
type noop struct{}

// Noop returns a Logger that discards all messages.
func Noop() Logger { return noop{} }

func (noop) ErrorPrintf(string, ...any) {}
func (noop) WarnPrintf(string, ...any)  {}
func (noop) InfoPrintf(string, ...any)  {}
func (noop) DebugPrintf(string, ...any) {}
