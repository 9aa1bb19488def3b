package jobs

import (
	"time"

	"github.com/drblury/jetflow/internal/runtime/logging"
)

// JobInfo describes a job execution to hooks.
type JobInfo struct {
	JID    string
	Class  string
	Stream string
	// Attempt is the broker delivery count of this execution.
	Attempt   uint64
	StartedAt time.Time
	// Duration is only set for OnJobDone and OnJobError.
	Duration time.Duration
}

// Hooks are optional callbacks on the job lifecycle. Nil hooks are skipped.
type Hooks struct {
	OnJobStart func(info JobInfo)
	OnJobDone  func(info JobInfo)
	// OnJobError is called when Perform returned an error or panicked.
	OnJobError func(info JobInfo, err error)
	// OnJobRetry is called after a failed job was scheduled for redelivery.
	OnJobRetry func(info JobInfo, delay time.Duration)
	// OnJobDead is called when retries are exhausted. dead tells whether the
	// payload went to the dead-letter subject or was dropped.
	OnJobDead func(info JobInfo, dead bool)
	// OnJobUnresolved is called for malformed payloads and unknown classes.
	OnJobUnresolved func(class string, err error)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnJobStart:      chain1(h.OnJobStart, other.OnJobStart),
		OnJobDone:       chain1(h.OnJobDone, other.OnJobDone),
		OnJobError:      chain2(h.OnJobError, other.OnJobError),
		OnJobRetry:      chain2(h.OnJobRetry, other.OnJobRetry),
		OnJobDead:       chain2(h.OnJobDead, other.OnJobDead),
		OnJobUnresolved: chain2(h.OnJobUnresolved, other.OnJobUnresolved),
	}
}

func chain1[A any](a, b func(A)) func(A) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A) {
		a(x)
		b(x)
	}
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B) {
		a(x, y)
		b(x, y)
	}
}

func (h Hooks) start(info JobInfo) {
	if h.OnJobStart != nil {
		h.OnJobStart(info)
	}
}

func (h Hooks) done(info JobInfo) {
	if h.OnJobDone != nil {
		h.OnJobDone(info)
	}
}

func (h Hooks) failed(info JobInfo, err error) {
	if h.OnJobError != nil {
		h.OnJobError(info, err)
	}
}

func (h Hooks) retry(info JobInfo, delay time.Duration) {
	if h.OnJobRetry != nil {
		h.OnJobRetry(info, delay)
	}
}

func (h Hooks) exhausted(info JobInfo, dead bool) {
	if h.OnJobDead != nil {
		h.OnJobDead(info, dead)
	}
}

func (h Hooks) unresolved(class string, err error) {
	if h.OnJobUnresolved != nil {
		h.OnJobUnresolved(class, err)
	}
}

// LoggingHooks logs retries and exhausted jobs. Start, done and fail lines are
// always written by the processor itself.
func LoggingHooks(logger logging.ServiceLogger) Hooks {
	logger = logging.OrNop(logger)
	return Hooks{
		OnJobRetry: func(info JobInfo, delay time.Duration) {
			logger.Debug("job retry scheduled", logging.LogFields{
				"jid":     info.JID,
				"class":   info.Class,
				"attempt": info.Attempt,
				"delay":   delay.String(),
			})
		},
		OnJobDead: func(info JobInfo, dead bool) {
			logger.Info("job retries exhausted", logging.LogFields{
				"jid":         info.JID,
				"class":       info.Class,
				"attempt":     info.Attempt,
				"dead_letter": dead,
			})
		},
	}
}

// MetricsHooks forwards lifecycle events to counter callbacks keyed by class
// and stream.
func MetricsHooks(onStart, onDone, onError func(class, stream string)) Hooks {
	return Hooks{
		OnJobStart: func(info JobInfo) {
			if onStart != nil {
				onStart(info.Class, info.Stream)
			}
		},
		OnJobDone: func(info JobInfo) {
			if onDone != nil {
				onDone(info.Class, info.Stream)
			}
		},
		OnJobError: func(info JobInfo, _ error) {
			if onError != nil {
				onError(info.Class, info.Stream)
			}
		},
	}
}

// AlertingHooks calls alert for every failed attempt.
func AlertingHooks(alert func(info JobInfo, err error)) Hooks {
	return Hooks{OnJobError: alert}
}
