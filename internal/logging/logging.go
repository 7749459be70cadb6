// Package logging defines the injectable Logger interface used
// throughout the runtime, grounded on the teacher's commbus.BusLogger /
// Logger dependency-injection pattern: every package that logs takes a
// Logger, never reaches for a package-level global.
package logging

import (
	"log/slog"
	"os"

	"github.com/MatusOllah/slogcolor"
)

// Logger is the logging contract every package in this module depends
// on, mirroring commbus.BusLogger's Debug/Info/Warn/Error shape.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// slogLogger adapts a *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// New returns the default Logger: colorized console output when stderr
// is a terminal (mirroring meermanr/LightwaveRF-go's slogcolor setup),
// plain JSON otherwise, at the given minimum level.
func New(level slog.Level) Logger {
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		opts := slogcolor.DefaultOptions
		opts.Level = level
		handler = slogcolor.NewHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return &slogLogger{l: slog.New(handler)}
}

func (s *slogLogger) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s *slogLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s *slogLogger) Warn(msg string, kv ...any)  { s.l.Warn(msg, kv...) }
func (s *slogLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }

// noopLogger discards everything, mirroring commbus.NoopBusLogger; used
// by tests that don't care about log output.
type noopLogger struct{}

// Noop returns a Logger that discards all messages.
func Noop() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
