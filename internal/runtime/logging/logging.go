// Package logging defines the logger every jetflow component writes to and
// the adapters that back it with slog, Watermill or logrus-style entries.
package logging

// LogFields are the structured key/value pairs attached to a log line.
type LogFields map[string]any

// ServiceLogger is what the engine, both processors and each handler context
// log through. Its method set mirrors watermill.LoggerAdapter, so the slog
// and nop loggers are Watermill adapters underneath.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// OrNop returns log, or a discarding logger when log is nil.
func OrNop(log ServiceLogger) ServiceLogger {
	if log == nil {
		return NewNopServiceLogger()
	}
	return log
}

// WithFields merges several field sets into one, later sets win.
func WithFields(sets ...LogFields) LogFields {
	size := 0
	for _, set := range sets {
		size += len(set)
	}
	if size == 0 {
		return nil
	}
	merged := make(LogFields, size)
	for _, set := range sets {
		for k, v := range set {
			merged[k] = v
		}
	}
	return merged
}
