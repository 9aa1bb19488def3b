package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/naming"
	"github.com/drblury/jetflow/internal/runtime/pool"
	"github.com/drblury/jetflow/internal/runtime/processor"
	"github.com/drblury/jetflow/internal/runtime/tracing"
)

// ProcessorName identifies the stream processor in logs.
const ProcessorName = "streams"

// BatchObserver is told about every processed batch.
type BatchObserver func(stream string, size int, elapsed time.Duration, err error)

// ProcessorDependencies bundles what the stream processor needs.
type ProcessorDependencies struct {
	Client    broker.Client
	Registry  *Registry
	Config    *config.Config
	Pool      processor.Pool
	Running   *processor.Flag
	Logger    logging.ServiceLogger
	Publisher *Publisher
	Observer  BatchObserver
}

// streamConfig is the merged configuration of one stream.
type streamConfig struct {
	class   string
	factory Factory
	options Options
}

// Processor pulls batches for every configured stream and hands them to the
// stream's handler on the worker pool.
type Processor struct {
	*processor.Base

	client    broker.Client
	registry  *Registry
	cfg       *config.Config
	publisher *Publisher
	observer  BatchObserver

	// Written during setup only.
	configs  map[string]streamConfig
	handlers map[string]Handler
	order    []string
}

// NewProcessor creates a stream processor. Nothing touches the broker until Run.
func NewProcessor(deps ProcessorDependencies) (*Processor, error) {
	if deps.Client == nil {
		return nil, runtimeerrors.ErrClientRequired
	}
	if deps.Config == nil {
		return nil, runtimeerrors.ErrConfigRequired
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Pool == nil {
		deps.Pool = pool.New(deps.Config.Concurrency)
	}
	if deps.Running == nil {
		deps.Running = processor.NewFlag()
	}
	if deps.Publisher == nil {
		deps.Publisher = NewPublisher(deps.Client, deps.Registry, deps.Logger)
	}
	return &Processor{
		Base:      processor.NewBase(deps.Pool, deps.Running, deps.Logger),
		client:    deps.Client,
		registry:  deps.Registry,
		cfg:       deps.Config,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		configs:   make(map[string]streamConfig),
		handlers:  make(map[string]Handler),
	}, nil
}

// Name implements processor.Processor.
func (p *Processor) Name() string { return ProcessorName }

// Streams returns the configured stream names in loop order.
func (p *Processor) Streams() []string {
	return append([]string(nil), p.order...)
}

// Options returns the merged options of stream.
func (p *Processor) Options(stream string) (Options, bool) {
	c, ok := p.configs[stream]
	return c.options, ok
}

// Run merges configuration, creates handlers and consumers, then starts the
// shared fetch loop.
func (p *Processor) Run() error {
	p.setupConfigs()
	p.setupHandlers()
	if err := p.setupConsumers(); err != nil {
		return err
	}
	if len(p.Consumers) == 0 {
		p.Logger.Debug("no stream consumers configured", nil)
		return nil
	}
	p.Logger.Info("stream processor started", logging.LogFields{"streams": len(p.order)})
	p.Start(p.workLoop)
	return nil
}

// setupConfigs starts from every registered handler and applies the
// configured overrides, keyed by stream. An override may run a class on a
// stream other than its registered one. Overrides naming an unknown class
// are skipped.
func (p *Processor) setupConfigs() {
	for _, def := range p.registry.Definitions() {
		p.put(streamConfig{class: def.Class, factory: def.Factory, options: def.Options})
	}

	for _, spec := range p.cfg.Consumers.Streams {
		var (
			def Definition
			ok  bool
		)
		if spec.Class != "" {
			var err error
			if def, err = p.registry.Resolve(spec.Class); err != nil {
				p.Logger.Debug("skipping stream consumer", logging.LogFields{
					"stream": spec.Stream,
					"class":  spec.Class,
					"error":  err.Error(),
				})
				continue
			}
			ok = true
		} else if spec.Stream != "" {
			def, ok = p.registry.ForStream(spec.Stream)
		}
		if !ok {
			p.Logger.Debug("skipping stream consumer without handler", logging.LogFields{"stream": spec.Stream})
			continue
		}
		p.put(streamConfig{class: def.Class, factory: def.Factory, options: def.Options.Merge(spec)})
	}
}

func (p *Processor) put(c streamConfig) {
	if _, exists := p.configs[c.options.Stream]; !exists {
		p.order = append(p.order, c.options.Stream)
	}
	p.configs[c.options.Stream] = c
}

func (p *Processor) setupHandlers() {
	for _, stream := range p.order {
		p.handlers[stream] = p.configs[stream].factory()
	}
}

func (p *Processor) setupConsumers() error {
	ctx := context.Background()
	for _, stream := range p.order {
		o := p.configs[stream].options
		consumer, err := p.client.PullSubscribe(ctx, o.ConsumerSubjects(), naming.Consumer(stream), o.ConsumerPolicy())
		if err != nil {
			return fmt.Errorf("streams: subscribe %s: %w", stream, err)
		}
		p.Consumers[stream] = consumer
	}
	return nil
}

func (p *Processor) workLoop() {
	for p.IsRunning() {
		for _, stream := range p.order {
			if !p.IsRunning() {
				return
			}
			o := p.configs[stream].options
			msgs := p.FetchMessages(stream, o.BatchSize, o.FetchTimeout)
			if len(msgs) == 0 || !p.IsRunning() {
				continue
			}
			p.Post(func() { p.process(stream, msgs) })
		}
	}
}

// process hands a batch to the stream handler. Handler errors are logged at
// debug level and otherwise ignored.
func (p *Processor) process(stream string, raw []broker.Message) {
	c := p.configs[stream]
	msgs := make([]*Message, len(raw))
	for i, m := range raw {
		msgs[i] = NewMessage(m, c.options.Serializer)
	}

	log := p.Logger.With(msgs[len(msgs)-1].LogFields()).With(logging.LogFields{
		"stream": stream,
		"class":  c.class,
		"batch":  len(msgs),
	})
	ctx, span := tracing.Start(context.Background(), "jetflow.stream "+stream,
		tracing.AttrStream.String(stream),
		tracing.AttrClass.String(c.class),
		tracing.AttrSequence.Int64(int64(msgs[0].StreamSequence())),
	)

	start := time.Now()
	log.Info("start", nil)
	err := p.handlers[stream].Process(Context{
		Context:   ctx,
		Stream:    stream,
		Logger:    log,
		Publisher: p.publisher,
	}, msgs)
	elapsed := time.Since(start)

	if err != nil {
		log.Debug("stream handler error", logging.LogFields{"error": err.Error()})
		log.Info("fail", logging.LogFields{"elapsed": elapsed.Seconds()})
	} else {
		log.Info("done", logging.LogFields{"elapsed": elapsed.Seconds()})
	}
	tracing.End(span, err)
	if p.observer != nil {
		p.observer(stream, len(msgs), elapsed, err)
	}
}
