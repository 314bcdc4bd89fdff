package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a logger whose entries can be asserted on.
type TestLogger struct {
	*zap.Logger
	observed *observer.ObservedLogs
}

// NewTestLogger observes every entry at trace level and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{Logger: zap.New(core), observed: observed}
}

// All returns every entry logged so far.
func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns entries with exactly msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("expected %v log containing %q, got %d entries", level, msg, t.observed.Len())
}

// AssertField fails tb unless an entry with message msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("field %s=%v not found on %q", key, want, msg)
}
