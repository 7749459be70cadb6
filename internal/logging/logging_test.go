package logging

import "testing"

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	l := Noop()
	l.Debug("x")
	l.Info("y", "k", "v")
	l.Warn("z")
	l.Error("w", "err", "boom")
}
