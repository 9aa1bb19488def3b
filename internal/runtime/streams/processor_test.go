package streams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	"github.com/drblury/jetflow/internal/runtime/logging"
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
}

func newFixture(t *testing.T, streams ...string) *fixture {
	t.Helper()
	f := &fixture{
		broker:   newBroker(t, streams...),
		registry: NewRegistry(),
		cfg:      &config.Config{},
		log:      logging.NewRecorder(),
		pool:     pool.New(2),
	}
	proc, err := NewProcessor(ProcessorDependencies{
		Client:   f.broker,
		Registry: f.registry,
		Config:   f.cfg,
		Pool:     f.pool,
		Running:  processor.NewFlag(),
		Logger:   f.log,
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

func TestNewProcessorValidation(t *testing.T) {
	_, err := NewProcessor(ProcessorDependencies{Config: &config.Config{}})
	assert.Error(t, err)
	_, err = NewProcessor(ProcessorDependencies{Client: memory.New()})
	assert.Error(t, err)
}

func TestSetupConfigs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("Orders", nopBatch, WithStream("orders")))
	f.cfg.Consumers.Streams = []config.StreamConsumerSpec{
		{Stream: "orders", BatchSize: 10},
		{Stream: "orders_archive", Class: "Orders", StartPosition: "new"},
		{Stream: "invalid", Class: "NonExistent"},
		{Stream: "orphan"},
	}

	f.proc.setupConfigs()

	assert.Equal(t, []string{"orders", "orders_archive"}, f.proc.Streams())
	orders, ok := f.proc.Options("orders")
	require.True(t, ok)
	assert.Equal(t, 10, orders.BatchSize)

	archive, ok := f.proc.Options("orders_archive")
	require.True(t, ok)
	assert.Equal(t, DefaultBatchSize, archive.BatchSize)
	assert.Equal(t, "new", archive.ConsumerPolicy().DeliverPolicy)
	assert.Equal(t, []string{"orders_archive.>"}, archive.ConsumerSubjects())

	_, ok = f.proc.Options("invalid")
	assert.False(t, ok)
	assert.NotEmpty(t, f.log.Find("skipping stream consumer"))
}

func TestRunWithoutHandlers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.proc.Run())
	assert.False(t, f.proc.IsRunning())
}

func TestRunMissingStream(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("Orders", nopBatch, WithStream("orders")))
	assert.Error(t, f.proc.Run())
	assert.False(t, f.proc.IsRunning())
}

func TestProcessLogsAndSwallowsErrors(t *testing.T) {
	f := newFixture(t)
	var observed []error
	f.proc.observer = func(_ string, size int, _ time.Duration, err error) {
		assert.Equal(t, 2, size)
		observed = append(observed, err)
	}
	require.NoError(t, f.registry.RegisterFunc("Orders", func(Context, []*Message) error {
		return errors.New("processing failed")
	}, WithStream("orders")))
	f.proc.setupConfigs()
	f.proc.setupHandlers()

	raw := []broker.Message{
		memory.NewMessage("orders.created", []byte(`{}`)),
		memory.NewMessage("orders.created", []byte(`{}`), memory.WithMetadata(broker.MessageMetadata{
			Stream: "orders", StreamSequence: 100, ConsumerSequence: 50, NumPending: 5,
		})),
	}
	assert.NotPanics(t, func() { f.proc.process("orders", raw) })

	debug := f.log.Find("stream handler error")
	require.Len(t, debug, 1)
	assert.Equal(t, "debug", debug[0].Level)
	assert.Equal(t, "processing failed", debug[0].Fields["error"])

	fail := f.log.Find("fail")
	require.Len(t, fail, 1)
	assert.Equal(t, uint64(100), fail[0].Fields["seq_stream"])
	assert.Equal(t, uint64(50), fail[0].Fields["seq_consumer"])
	assert.Equal(t, uint64(5), fail[0].Fields["num_pending"])
	require.Len(t, observed, 1)
	assert.Error(t, observed[0])
}

func TestEachSetsCurrentMessage(t *testing.T) {
	var seen []string
	h := Each(OneHandlerFunc(func(ctx Context, msg *Message) error {
		assert.Same(t, msg, ctx.Message)
		seen = append(seen, msg.Subject())
		if msg.Subject() == "x.stop" {
			return errors.New("stop")
		}
		return nil
	}))
	msgs := []*Message{
		NewMessage(memory.NewMessage("x.a", nil), nil),
		NewMessage(memory.NewMessage("x.stop", nil), nil),
		NewMessage(memory.NewMessage("x.b", nil), nil),
	}
	err := h.Process(Context{Context: context.Background(), Logger: logging.NewRecorder()}, msgs)
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"x.a", "x.stop"}, seen)
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t, "orders", "audit")
	f.cfg.Consumers.Streams = []config.StreamConsumerSpec{{Stream: "orders", FetchTimeout: 10 * time.Millisecond}}

	var (
		mu   sync.Mutex
		seen []int
	)
	require.NoError(t, f.registry.RegisterOne("Orders", func(ctx Context, msg *Message) error {
		var order struct{ ID int }
		if err := msg.Decode(&order); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, order.ID)
		mu.Unlock()
		if _, err := ctx.Publisher.PublishStream(ctx, "audit", map[string]int{"order": order.ID}); err != nil {
			return err
		}
		return msg.Ack()
	}, WithStream("orders"), WithFetchTimeout(10*time.Millisecond)))

	pub := NewPublisher(f.broker, f.registry, nil)
	for id := 1; id <= 3; id++ {
		_, err := pub.Publish(context.Background(), "Orders", map[string]int{"id": id})
		require.NoError(t, err)
	}

	require.NoError(t, f.proc.Run())
	assert.True(t, f.proc.IsRunning())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []int{1, 2, 3}, seen)
	require.Eventually(t, func() bool { return len(f.broker.Messages("audit")) == 3 }, time.Second, 10*time.Millisecond)

	f.proc.Running.MakeFalse()
	f.proc.Wait()
}
