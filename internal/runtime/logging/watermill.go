package logging

import (
	"io"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// traceAsDebug lowers Watermill's trace level onto slog's debug level, so
// --dev shows fetch and settle tracing without a custom slog level.
var traceAsDebug = map[slog.Level]slog.Level{
	watermill.LevelTrace: slog.LevelDebug,
}

// NewSlogServiceLogger logs through log. Trace lines are emitted at debug.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("jetflow: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, traceAsDebug))
}

// NewTextServiceLogger writes logfmt-style lines to w, at info level or at
// debug level when verbose is set.
func NewTextServiceLogger(w io.Writer, verbose bool) ServiceLogger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return NewSlogServiceLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// NewWatermillServiceLogger logs through an existing Watermill adapter.
func NewWatermillServiceLogger(adapter watermill.LoggerAdapter) ServiceLogger {
	if adapter == nil {
		panic("jetflow: watermill logger cannot be nil")
	}
	return watermillLogger{adapter: adapter}
}

// NewNopServiceLogger returns a logger that discards everything.
func NewNopServiceLogger() ServiceLogger {
	return watermillLogger{adapter: watermill.NopLogger{}}
}

type watermillLogger struct {
	adapter watermill.LoggerAdapter
}

func (l watermillLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return watermillLogger{adapter: l.adapter.With(watermill.LogFields(fields))}
}

func (l watermillLogger) Debug(msg string, fields LogFields) {
	l.adapter.Debug(msg, watermill.LogFields(fields))
}

func (l watermillLogger) Info(msg string, fields LogFields) {
	l.adapter.Info(msg, watermill.LogFields(fields))
}

func (l watermillLogger) Error(msg string, err error, fields LogFields) {
	l.adapter.Error(msg, err, watermill.LogFields(fields))
}

func (l watermillLogger) Trace(msg string, fields LogFields) {
	l.adapter.Trace(msg, watermill.LogFields(fields))
}
