package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/jetflow/internal/runtime/jobs"
	"github.com/drblury/jetflow/internal/runtime/streams"
)

// MetricsNamespace prefixes every collector.
const MetricsNamespace = "jetflow"

// Metrics tracks job and stream processing statistics.
type Metrics struct {
	mu sync.RWMutex

	classes map[string]*JobClassMetrics

	jobsStarted     *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobRetries      *prometheus.CounterVec
	jobsExhausted   *prometheus.CounterVec
	jobsUnresolved  *prometheus.CounterVec
	streamBatches   *prometheus.CounterVec
	streamMessages  *prometheus.CounterVec
	streamDurations *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// JobClassMetrics holds the counts of one job class.
type JobClassMetrics struct {
	Started       uint64    `json:"started"`
	Done          uint64    `json:"done"`
	Failed        uint64    `json:"failed"`
	Retried       uint64    `json:"retried"`
	DeadLettered  uint64    `json:"dead_lettered"`
	Terminated    uint64    `json:"terminated"`
	Unresolved    uint64    `json:"unresolved"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// MetricsSnapshot is a point-in-time copy of the per-class counts.
type MetricsSnapshot struct {
	Classes     map[string]JobClassMetrics `json:"classes"`
	CollectedAt time.Time                  `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewMetrics creates the collectors. A nil registerer means the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		classes:         make(map[string]*JobClassMetrics),
		registerer:      registerer,
		jobsStarted:     newCounterVec("jobs", "started_total", "Jobs handed to a handler", []string{"class", "stream"}),
		jobsFinished:    newCounterVec("jobs", "finished_total", "Jobs finished, by outcome", []string{"class", "stream", "outcome"}),
		jobDuration:     newHistogramVec("jobs", "duration_seconds", "Time spent in Perform", prometheus.DefBuckets, []string{"class"}),
		jobRetries:      newCounterVec("jobs", "retries_total", "Failed jobs scheduled for redelivery", []string{"class"}),
		jobsExhausted:   newCounterVec("jobs", "exhausted_total", "Jobs out of retries, by action", []string{"class", "action"}),
		jobsUnresolved:  newCounterVec("jobs", "unresolved_total", "Job messages that could not be dispatched", []string{"class"}),
		streamBatches:   newCounterVec("streams", "batches_total", "Batches handed to stream handlers, by outcome", []string{"stream", "outcome"}),
		streamMessages:  newCounterVec("streams", "messages_total", "Messages handed to stream handlers", []string{"stream"}),
		streamDurations: newHistogramVec("streams", "batch_duration_seconds", "Time spent in Process", prometheus.DefBuckets, []string{"stream"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	collectors := []prometheus.Collector{
		m.jobsStarted,
		m.jobsFinished,
		m.jobDuration,
		m.jobRetries,
		m.jobsExhausted,
		m.jobsUnresolved,
		m.streamBatches,
		m.streamMessages,
		m.streamDurations,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// ObserveJobStart counts a job handed to its handler.
func (m *Metrics) ObserveJobStart(class, stream string) {
	m.update(class, func(c *JobClassMetrics) { c.Started++ })
	m.jobsStarted.WithLabelValues(class, stream).Inc()
}

// ObserveJob records a finished job. err is nil for success.
func (m *Metrics) ObserveJob(class, stream string, elapsed time.Duration, err error) {
	outcome := "done"
	if err != nil {
		outcome = "fail"
	}
	m.update(class, func(c *JobClassMetrics) {
		if err != nil {
			c.Failed++
		} else {
			c.Done++
		}
	})
	m.jobsFinished.WithLabelValues(class, stream, outcome).Inc()
	m.jobDuration.WithLabelValues(class).Observe(elapsed.Seconds())
}

// RecordRetry counts a failed job put back with a delay.
func (m *Metrics) RecordRetry(class string) {
	m.update(class, func(c *JobClassMetrics) { c.Retried++ })
	m.jobRetries.WithLabelValues(class).Inc()
}

// RecordDeadLetter counts a job out of retries. dead tells whether it went to
// the dead-letter subject or was terminated.
func (m *Metrics) RecordDeadLetter(class string, dead bool) {
	action := "term"
	if dead {
		action = "dead"
	}
	m.update(class, func(c *JobClassMetrics) {
		if dead {
			c.DeadLettered++
		} else {
			c.Terminated++
		}
	})
	m.jobsExhausted.WithLabelValues(class, action).Inc()
}

// RecordDropped counts a message that could not be dispatched.
func (m *Metrics) RecordDropped(class string) {
	m.update(class, func(c *JobClassMetrics) { c.Unresolved++ })
	m.jobsUnresolved.WithLabelValues(class).Inc()
}

// ObserveBatch records a processed stream batch.
func (m *Metrics) ObserveBatch(stream string, size int, elapsed time.Duration, err error) {
	outcome := "done"
	if err != nil {
		outcome = "fail"
	}
	m.streamBatches.WithLabelValues(stream, outcome).Inc()
	m.streamMessages.WithLabelValues(stream).Add(float64(size))
	m.streamDurations.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// JobHooks feeds job lifecycle events into m.
func (m *Metrics) JobHooks() jobs.Hooks {
	return jobs.Hooks{
		OnJobStart: func(info jobs.JobInfo) { m.ObserveJobStart(info.Class, info.Stream) },
		OnJobDone:  func(info jobs.JobInfo) { m.ObserveJob(info.Class, info.Stream, info.Duration, nil) },
		OnJobError: func(info jobs.JobInfo, err error) {
			m.ObserveJob(info.Class, info.Stream, info.Duration, err)
		},
		OnJobRetry:      func(info jobs.JobInfo, _ time.Duration) { m.RecordRetry(info.Class) },
		OnJobDead:       func(info jobs.JobInfo, dead bool) { m.RecordDeadLetter(info.Class, dead) },
		OnJobUnresolved: func(class string, _ error) { m.RecordDropped(class) },
	}
}

// BatchObserver feeds stream batches into m.
func (m *Metrics) BatchObserver() streams.BatchObserver {
	return m.ObserveBatch
}

// GetSnapshot returns a copy of the per-class counts.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		Classes:     make(map[string]JobClassMetrics, len(m.classes)),
		CollectedAt: time.Now(),
	}
	for class, c := range m.classes {
		snapshot.Classes[class] = *c
	}
	return snapshot
}

// GetClassMetrics returns the counts of class, or nil when nothing was recorded.
func (m *Metrics) GetClassMetrics(class string) *JobClassMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.classes[class]; ok {
		cp := *c
		return &cp
	}
	return nil
}

func (m *Metrics) update(class string, fn func(*JobClassMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.classes[class]
	if !ok {
		c = &JobClassMetrics{}
		m.classes[class] = c
	}
	fn(c)
	c.LastUpdatedAt = time.Now()
}

// Reset clears every count and collector.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.classes = make(map[string]*JobClassMetrics)
	m.jobsStarted.Reset()
	m.jobsFinished.Reset()
	m.jobDuration.Reset()
	m.jobRetries.Reset()
	m.jobsExhausted.Reset()
	m.jobsUnresolved.Reset()
	m.streamBatches.Reset()
	m.streamMessages.Reset()
	m.streamDurations.Reset()
}
