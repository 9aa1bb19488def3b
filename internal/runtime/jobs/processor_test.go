package jobs

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
	"github.com/drblury/jetflow/internal/runtime/pool"
	"github.com/drblury/jetflow/internal/runtime/processor"
	"github.com/drblury/jetflow/transport/memory"
)

type fixture struct {
	broker   *memory.Broker
	registry *Registry
	cfg      *config.Config
	log      *logging.Recorder
	pool     *pool.Pool
	proc     *Processor
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.JobsFetchTimeout = 10 * time.Millisecond
	cfg.SchedulerFetchTimeout = 10 * time.Millisecond

	f := &fixture{
		broker:   newMemoryBroker(t),
		registry: NewRegistry(),
		cfg:      &cfg,
		log:      logging.NewRecorder(),
		pool:     pool.New(2),
		now:      time.Unix(1_700_000_000, 0),
	}
	proc, err := NewProcessor(ProcessorDependencies{
		Client:   f.broker,
		Registry: f.registry,
		Config:   f.cfg,
		Pool:     f.pool,
		Running:  processor.NewFlag(),
		Logger:   f.log,
		Now:      func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.proc = proc
	t.Cleanup(func() {
		proc.Running.MakeFalse()
		proc.Wait()
		f.pool.Shutdown()
		f.pool.WaitForTermination(time.Second)
	})
	return f
}

func (f *fixture) jobMessage(t *testing.T, class string, delivered uint64, opts ...Option) *memory.Message {
	t.Helper()
	env, err := NewEnvelope(class, []any{1}, DefaultOptions().Apply(opts...))
	require.NoError(t, err)
	data, err := env.Marshal()
	require.NoError(t, err)
	return memory.NewMessage(env.Subject(), data, memory.WithDelivered(delivered))
}

func TestNewProcessorValidation(t *testing.T) {
	_, err := NewProcessor(ProcessorDependencies{Config: &config.Config{}})
	assert.Error(t, err)
	_, err = NewProcessor(ProcessorDependencies{Client: memory.New()})
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 16*time.Second, Backoff(1))
	assert.Equal(t, 31*time.Second, Backoff(2))
	assert.Equal(t, 96*time.Second, Backoff(3))
	assert.Equal(t, 271*time.Second, Backoff(4))
}

func TestBackoffIsClampedForLargeAttempts(t *testing.T) {
	ceiling := Backoff(maxBackoffAttempt)
	assert.Positive(t, ceiling)
	for _, attempt := range []uint64{maxBackoffAttempt + 1, 310, 400, 1 << 20, ^uint64(0)} {
		assert.Equal(t, ceiling, Backoff(attempt), "attempt %d", attempt)
	}
	assert.Greater(t, Backoff(maxBackoffAttempt), Backoff(maxBackoffAttempt-1))
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(t)
	var seen Context
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(ctx Context, _ Args) error {
		seen = ctx
		return nil
	}))
	msg := f.jobMessage(t, "MyJob", 1)

	f.proc.process("default", msg)

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeAck, outcome)
	assert.Equal(t, "MyJob", seen.Class)
	assert.Equal(t, "default", seen.Stream)
	assert.Equal(t, uint64(1), seen.Attempt)

	start := f.log.Find("start")
	require.Len(t, start, 1)
	assert.Equal(t, "MyJob", start[0].Fields["class"])
	done := f.log.Find("done")
	require.Len(t, done, 1)
	assert.Contains(t, done[0].Fields, "elapsed")
	assert.Empty(t, f.log.Find("fail"))
}

func TestProcessRetriesWithBackoff(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(Context, Args) error { return errors.New("boom") }))

	for attempt := uint64(1); attempt <= 3; attempt++ {
		msg := f.jobMessage(t, "MyJob", attempt)
		f.proc.process("default", msg)
		outcome, delay := msg.Outcome()
		assert.Equal(t, memory.OutcomeNak, outcome, "attempt %d", attempt)
		assert.Equal(t, Backoff(attempt), delay, "attempt %d", attempt)
	}
	assert.Len(t, f.log.Find("fail"), 3)
	assert.Empty(t, f.broker.Messages("dead"))
}

func TestProcessDeadLetters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(Context, Args) error { return errors.New("boom") }))
	msg := f.jobMessage(t, "MyJob", 4)

	f.proc.process("default", msg)

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeAck, outcome)
	dead := f.broker.Messages("dead")
	require.Len(t, dead, 1)
	assert.Equal(t, "jobs.dead.my_job", dead[0].Subject)
	assert.Equal(t, msg.Data(), dead[0].Data)
}

func TestProcessTermsWhenDeadDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(Context, Args) error { return errors.New("boom") }))
	msg := f.jobMessage(t, "MyJob", 2, WithRetry(1), WithDead(false))

	f.proc.process("default", msg)

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeTerm, outcome)
	assert.Empty(t, f.broker.Messages("dead"))
}

func TestProcessZeroRetries(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(Context, Args) error { return errors.New("boom") }))
	msg := f.jobMessage(t, "MyJob", 1, WithRetry(0))

	f.proc.process("default", msg)

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeAck, outcome)
	assert.Len(t, f.broker.Messages("dead"), 1)
}

func TestProcessPanicIsFatal(t *testing.T) {
	f := newFixture(t)
	var failed atomic.Bool
	f.proc.hooks = Hooks{OnJobError: func(JobInfo, error) { failed.Store(true) }}
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(Context, Args) error { panic("kaboom") }))
	msg := f.jobMessage(t, "MyJob", 1)

	assert.PanicsWithValue(t, "kaboom", func() { f.proc.process("default", msg) })

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeNone, outcome)
	assert.Len(t, f.log.Find("fail"), 1)
	assert.True(t, failed.Load())
}

func TestProcessUnresolved(t *testing.T) {
	t.Run("unknown class is left", func(t *testing.T) {
		f := newFixture(t)
		msg := f.jobMessage(t, "Missing", 1)
		f.proc.process("default", msg)

		outcome, _ := msg.Outcome()
		assert.Equal(t, memory.OutcomeNone, outcome)
		entries := f.log.Find("unable to dispatch job")
		require.Len(t, entries, 1)
		assert.Equal(t, "Missing", entries[0].Fields["class"])
	})

	t.Run("malformed payload is terminated", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.UnresolvedPolicy = config.UnresolvedTerm
		msg := memory.NewMessage("default.x", []byte("garbage"))
		f.proc.process("default", msg)

		outcome, _ := msg.Outcome()
		assert.Equal(t, memory.OutcomeTerm, outcome)
		assert.Len(t, f.log.Find("unable to dispatch job"), 1)
	})
}

func scheduledMessage(executeAt int64, stream, subject string) *memory.Message {
	return memory.NewMessage("scheduled.my_job", []byte(`{"class":"MyJob"}`), memory.WithHeaders(metadata.New(
		metadata.HeaderStream, stream,
		metadata.HeaderSubject, subject,
		metadata.HeaderExecuteAt, strconv.FormatInt(executeAt, 10),
		metadata.HeaderMsgID, "jid-1",
		metadata.HeaderExpectedStream, "scheduled",
		"Custom", "kept",
	)))
}

func TestRescheduleDue(t *testing.T) {
	f := newFixture(t)
	msg := scheduledMessage(f.now.Unix(), "default", "default.my_job")

	f.proc.reschedule(msg, f.now)

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeAck, outcome)
	msgs := f.broker.Messages("default")
	require.Len(t, msgs, 1)
	assert.Equal(t, "default.my_job", msgs[0].Subject)
	assert.Equal(t, metadata.Metadata{"Custom": "kept", metadata.HeaderMsgID: "jid-1"}, msgs[0].Headers)
}

func TestRescheduleNotDue(t *testing.T) {
	f := newFixture(t)
	msg := scheduledMessage(f.now.Unix()+90, "default", "default.my_job")

	f.proc.reschedule(msg, f.now.Add(500*time.Millisecond))

	outcome, delay := msg.Outcome()
	assert.Equal(t, memory.OutcomeNak, outcome)
	assert.Equal(t, 89500*time.Millisecond, delay)
	assert.Empty(t, f.broker.Messages("default"))
}

func TestRescheduleWrongStream(t *testing.T) {
	f := newFixture(t)
	msg := scheduledMessage(f.now.Unix(), "scheduled", "default.my_job")

	f.proc.reschedule(msg, f.now)

	outcome, delay := msg.Outcome()
	assert.Equal(t, memory.OutcomeNak, outcome)
	assert.Equal(t, Backoff(1), delay)
	assert.Len(t, f.log.Find("failed to enqueue scheduled job"), 1)
}

func TestRescheduleFailureBacksOffByDeliveryCount(t *testing.T) {
	f := newFixture(t)
	msg := memory.NewMessage("scheduled.my_job", nil, memory.WithDelivered(3), memory.WithHeaders(metadata.New(
		metadata.HeaderStream, "gone",
		metadata.HeaderSubject, "gone.my_job",
		metadata.HeaderExecuteAt, strconv.FormatInt(f.now.Unix(), 10),
	)))

	f.proc.reschedule(msg, f.now)

	outcome, delay := msg.Outcome()
	assert.Equal(t, memory.OutcomeNak, outcome)
	assert.Equal(t, Backoff(3), delay)
}

func TestScheduleLoopDoesNotSpinOnFailedRepublish(t *testing.T) {
	f := newFixture(t)
	f.cfg.Consumers.Jobs = map[string]config.JobConsumerSpec{
		"scheduled": f.cfg.Consumers.Jobs["scheduled"],
	}
	_, err := f.broker.Publish(context.Background(), "scheduled.my_job", []byte(`{"class":"MyJob"}`), broker.PublishOptions{
		Headers: metadata.New(
			metadata.HeaderStream, "gone",
			metadata.HeaderSubject, "gone.my_job",
			metadata.HeaderExecuteAt, strconv.FormatInt(f.now.Unix(), 10),
		),
	})
	require.NoError(t, err)

	require.NoError(t, f.proc.Run())
	require.Eventually(t, func() bool {
		return len(f.log.Find("failed to enqueue scheduled job")) > 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, f.log.Find("failed to enqueue scheduled job"), 1)
}

func TestRescheduleMalformedHeaders(t *testing.T) {
	f := newFixture(t)
	f.cfg.UnresolvedPolicy = config.UnresolvedTerm
	msg := memory.NewMessage("scheduled.my_job", []byte("{}"))

	f.proc.reschedule(msg, f.now)

	outcome, _ := msg.Outcome()
	assert.Equal(t, memory.OutcomeTerm, outcome)
}

func TestRunBuildsWeights(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.broker.EnsureStream(context.Background(), "critical", config.StreamSpec{}))
	f.cfg.Consumers.Jobs["critical"] = config.JobConsumerSpec{Subject: "critical.>", Priority: 3}

	require.NoError(t, f.proc.Run())

	assert.Equal(t, []string{"critical", "critical", "critical", "default"}, f.proc.Weights())
	assert.Len(t, f.proc.Consumers, 3)
	assert.True(t, f.proc.IsRunning())
}

func TestRunWithoutSchedulerLogsError(t *testing.T) {
	f := newFixture(t)
	delete(f.cfg.Consumers.Jobs, "scheduled")

	require.NoError(t, f.proc.Run())

	entries := f.log.Find("delayed jobs will not be enqueued")
	require.Len(t, entries, 1)
	assert.ErrorIs(t, entries[0].Err, runtimeerrors.ErrSchedulerNotConfigured)
	assert.NotContains(t, f.proc.Consumers, "scheduled")
}

func TestRunWithSchedulerDoesNotLogError(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.proc.Run())

	assert.Empty(t, f.log.Find("delayed jobs will not be enqueued"))
}

// countingConsumer records fetches into a shared log and stops the processor
// after limit fetches in total.
type countingConsumer struct {
	name    string
	fetches *[]string
	limit   int
	running *processor.Flag
}

func (c *countingConsumer) Fetch(int, time.Duration) ([]broker.Message, error) {
	*c.fetches = append(*c.fetches, c.name)
	if len(*c.fetches) >= c.limit {
		c.running.MakeFalse()
	}
	return nil, broker.ErrNoMessages
}

func (f *fixture) countingConsumers(limit int, priorities map[string]int) *[]string {
	fetches := new([]string)
	f.proc.weights = nil
	for _, name := range []string{"critical", "default", "low"} {
		priority, ok := priorities[name]
		if !ok {
			continue
		}
		f.proc.Consumers[name] = &countingConsumer{name: name, fetches: fetches, limit: limit, running: f.proc.Running}
		for range priority {
			f.proc.weights = append(f.proc.weights, name)
		}
	}
	return fetches
}

func TestWorkLoopFetchOrderFollowsShuffle(t *testing.T) {
	f := newFixture(t)
	fetches := f.countingConsumers(8, map[string]int{"critical": 2, "default": 1, "low": 1})
	passes := 0
	f.proc.shuffle = func(s []string) {
		passes++
		if passes%2 == 0 {
			slices.Reverse(s)
		}
	}

	f.proc.Running.MakeTrue()
	f.proc.workLoop()

	assert.Equal(t, []string{
		"critical", "critical", "default", "low",
		"low", "default", "critical", "critical",
	}, *fetches)
	assert.Equal(t, 2, passes)
}

func TestWorkLoopFetchFrequencyMatchesPriority(t *testing.T) {
	f := newFixture(t)
	const passes = 4000
	fetches := f.countingConsumers(passes*4, map[string]int{"critical": 3, "default": 1})

	f.proc.Running.MakeTrue()
	f.proc.workLoop()

	require.Len(t, *fetches, passes*4)
	counts := map[string]int{}
	leaders := map[string]int{}
	for i, name := range *fetches {
		counts[name]++
		if i%4 == 0 {
			leaders[name]++
		}
	}
	total := float64(len(*fetches))
	assert.InDelta(t, 0.75, float64(counts["critical"])/total, 0.01)
	assert.InDelta(t, 0.25, float64(counts["default"])/total, 0.01)
	// Each pass is shuffled, so the first fetch of a pass also follows p/Σp.
	assert.InDelta(t, 0.75, float64(leaders["critical"])/passes, 0.05)
	assert.InDelta(t, 0.25, float64(leaders["default"])/passes, 0.05)
}

func TestRunFailsOnMissingStream(t *testing.T) {
	f := newFixture(t)
	f.cfg.Consumers.Jobs["ghost"] = config.JobConsumerSpec{Subject: "ghost.>", Priority: 1}

	assert.Error(t, f.proc.Run())
	assert.False(t, f.proc.IsRunning())
}

func TestRunWithoutConsumers(t *testing.T) {
	f := newFixture(t)
	f.cfg.Consumers.Jobs = nil

	require.NoError(t, f.proc.Run())
	assert.False(t, f.proc.IsRunning())
	f.proc.Wait()
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.proc.now = time.Now
	ran := make(chan string, 2)
	require.NoError(t, f.registry.RegisterFunc("MyJob", func(ctx Context, args Args) error {
		var s string
		if err := args.Decode(0, &s); err != nil {
			return err
		}
		ran <- s
		return nil
	}))
	pub := NewPublisher(f.broker, f.registry, nil)
	ctx := context.Background()

	require.NoError(t, f.proc.Run())
	_, err := pub.Publish(ctx, "MyJob", []any{"now"})
	require.NoError(t, err)
	_, err = pub.PublishAt(ctx, "MyJob", time.Now().Add(-time.Second), []any{"scheduled"})
	require.NoError(t, err)

	var got []string
	for len(got) < 2 {
		select {
		case s := <-ran:
			got = append(got, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("jobs did not run, got %v", got)
		}
	}
	assert.ElementsMatch(t, []string{"now", "scheduled"}, got)
	require.Eventually(t, func() bool { return len(f.log.Find("done")) == 2 }, 2*time.Second, 10*time.Millisecond)

	f.proc.Running.MakeFalse()
	f.proc.Wait()
}

var _ broker.Message = (*memory.Message)(nil)
