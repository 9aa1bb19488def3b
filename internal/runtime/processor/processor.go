// Package processor holds what the job and stream processors share: the
// running flag, the worker pool handle, the consumer map and the fetch
// primitive.
package processor

import (
	"errors"
	"sync"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
)

// Pool is the part of the worker pool the processors use.
type Pool interface {
	Post(task func()) error
}

// Processor is implemented by the job and stream processors.
type Processor interface {
	// Run performs the one-time setup and starts the polling loops. It is a
	// no-op when setup produced no consumers.
	Run() error
	// Wait blocks until every polling loop has returned.
	Wait()
	// Name identifies the processor in logs.
	Name() string
}

// Base carries the shared processor state. The consumer map is written during
// setup only and read concurrently by the loops afterwards.
type Base struct {
	Pool      Pool
	Running   *Flag
	Logger    logging.ServiceLogger
	Consumers map[string]broker.Consumer

	loops sync.WaitGroup
}

// NewBase creates a Base with an empty consumer map.
func NewBase(pool Pool, running *Flag, logger logging.ServiceLogger) *Base {
	return &Base{
		Pool:      pool,
		Running:   running,
		Logger:    logging.OrNop(logger),
		Consumers: make(map[string]broker.Consumer),
	}
}

// IsRunning reports the shared running flag.
func (b *Base) IsRunning() bool {
	return b.Running != nil && b.Running.IsTrue()
}

// Start sets the running flag and launches every loop on its own goroutine.
// It must be called once, after setup filled the consumer map.
func (b *Base) Start(loops ...func()) {
	if len(loops) == 0 {
		return
	}
	b.Running.MakeTrue()
	for _, loop := range loops {
		b.loops.Add(1)
		go func() {
			defer b.loops.Done()
			loop()
		}()
	}
}

// Wait blocks until every loop passed to Start has returned. It returns
// immediately when Start was never called.
func (b *Base) Wait() {
	b.loops.Wait()
}

// FetchMessages fetches from the named consumer. An empty fetch yields nil.
// Any other broker error is logged at debug level and also yields nil, so a
// failing fetch never stops a loop.
func (b *Base) FetchMessages(name string, batch int, timeout time.Duration) []broker.Message {
	consumer, ok := b.Consumers[name]
	if !ok {
		return nil
	}
	msgs, err := consumer.Fetch(batch, timeout)
	if err != nil {
		if !errors.Is(err, runtimeerrors.ErrNoMessages) {
			b.Logger.Debug("fetch failed", logging.LogFields{"stream": name, "error": err.Error()})
		}
		return nil
	}
	return msgs
}

// Post submits task to the pool. A rejection after shutdown is benign and
// reported as false.
func (b *Base) Post(task func()) bool {
	if err := b.Pool.Post(task); err != nil {
		if errors.Is(err, runtimeerrors.ErrRejected) {
			b.Logger.Debug("task rejected, pool is shutting down", nil)
		} else {
			b.Logger.Error("task submission failed", err, nil)
		}
		return false
	}
	return true
}
