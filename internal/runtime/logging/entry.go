package logging

// EntryLoggerAdapter is satisfied by logrus-style entries: leveled print
// methods plus WithField and WithError returning the entry type T.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// EntryLogger is an entry whose With methods return the interface itself.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

// NewEntryServiceLogger logs through entry, for example a *logrus.Entry.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("jetflow: entry logger cannot be nil")
	}
	return entryLogger[T]{entry: entry}
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (l entryLogger[T]) with(fields LogFields) T {
	e := l.entry
	for k, v := range fields {
		e = e.WithField(k, v)
	}
	return e
}

func (l entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return entryLogger[T]{entry: l.with(fields)}
}

func (l entryLogger[T]) Debug(msg string, fields LogFields) { l.with(fields).Debug(msg) }

func (l entryLogger[T]) Info(msg string, fields LogFields) { l.with(fields).Info(msg) }

func (l entryLogger[T]) Trace(msg string, fields LogFields) { l.with(fields).Trace(msg) }

func (l entryLogger[T]) Error(msg string, err error, fields LogFields) {
	e := l.with(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}
