package logger

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Logs gives tests access to the entries of an observer logger.
type Logs interface {
	Len() int
	All() []observer.LoggedEntry
	TakeAll() []observer.LoggedEntry
	FilterMessage(msg string) *observer.ObservedLogs

	// ForTrace returns the entries written with a context carrying a span of
	// the given trace.
	ForTrace(traceID trace.TraceID) []observer.LoggedEntry
}

type observedLogs struct {
	*observer.ObservedLogs
}

func (o observedLogs) ForTrace(traceID trace.TraceID) []observer.LoggedEntry {
	return o.FilterField(zap.String(traceIDKey, traceID.String())).All()
}

// NewObserverLogger returns a logger keeping its entries in memory. The level
// is parsed like the configured log level; an unknown one keeps everything.
func NewObserverLogger(level string) (*ZapLogger, Logs) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zap.DebugLevel
	}

	core, logs := observer.New(lvl)
	return &ZapLogger{zap.New(core)}, observedLogs{logs}
}
