package jobs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
	"github.com/drblury/jetflow/internal/runtime/naming"
	"github.com/drblury/jetflow/internal/runtime/processor"
	"github.com/drblury/jetflow/internal/runtime/pool"
	"github.com/drblury/jetflow/internal/runtime/tracing"
)

// ProcessorName identifies the job processor in logs.
const ProcessorName = "jobs"

// ProcessorDependencies bundles what the job processor needs.
type ProcessorDependencies struct {
	Client   broker.Client
	Registry *Registry
	Config   *config.Config
	Pool     processor.Pool
	Running  *processor.Flag
	Logger   logging.ServiceLogger
	Hooks    Hooks
	// Now defaults to time.Now.
	Now func() time.Time
}

// Processor consumes job streams in weighted round-robin order, republishes
// due scheduled jobs and applies the retry policy to failures.
type Processor struct {
	*processor.Base

	client   broker.Client
	registry *Registry
	cfg      *config.Config
	hooks    Hooks
	now      func() time.Time

	// weights holds every rotated stream name repeated priority times.
	weights []string
	shuffle func([]string)
}

// NewProcessor creates a job processor. Nothing touches the broker until Run.
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
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Processor{
		Base:     processor.NewBase(deps.Pool, deps.Running, deps.Logger),
		client:   deps.Client,
		registry: deps.Registry,
		cfg:      deps.Config,
		hooks:    deps.Hooks,
		now:      deps.Now,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}, nil
}

// Name implements processor.Processor.
func (p *Processor) Name() string { return ProcessorName }

// Weights returns the rotation list built by Run.
func (p *Processor) Weights() []string {
	return append([]string(nil), p.weights...)
}

// Run binds a durable consumer per configured job stream and starts the work
// loop and, when a "scheduled" consumer is configured, the schedule loop.
func (p *Processor) Run() error {
	if err := p.setup(); err != nil {
		return err
	}
	if len(p.Consumers) == 0 {
		p.Logger.Debug("no job consumers configured", nil)
		return nil
	}

	var loops []func()
	if len(p.weights) > 0 {
		loops = append(loops, p.workLoop)
	}
	_, scheduler := p.Consumers[naming.ScheduledStream]
	if scheduler {
		loops = append(loops, p.scheduleLoop)
	} else if len(p.weights) > 0 {
		p.Logger.Error("delayed jobs will not be enqueued", runtimeerrors.ErrSchedulerNotConfigured, logging.LogFields{
			"stream": naming.ScheduledStream,
		})
	}
	p.Logger.Info("job processor started", logging.LogFields{
		"streams":   len(p.Consumers),
		"weights":   len(p.weights),
		"scheduler": scheduler,
	})
	p.Start(loops...)
	return nil
}

func (p *Processor) setup() error {
	names := make([]string, 0, len(p.cfg.Consumers.Jobs))
	for name := range p.cfg.Consumers.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := context.Background()
	for _, name := range names {
		spec := p.cfg.Consumers.Jobs[name]
		subject := spec.Subject
		if subject == "" {
			subject = naming.Wildcard(name)
		}
		consumer, err := p.client.PullSubscribe(ctx, []string{subject}, naming.Consumer(name), spec.Consumer)
		if err != nil {
			return fmt.Errorf("jobs: subscribe %s: %w", name, err)
		}
		p.Consumers[name] = consumer
		for i := 0; i < spec.Priority; i++ {
			p.weights = append(p.weights, name)
		}
	}
	return nil
}

func (p *Processor) workLoop() {
	order := make([]string, len(p.weights))
	for p.IsRunning() {
		copy(order, p.weights)
		p.shuffle(order)
		for _, name := range order {
			if !p.IsRunning() {
				return
			}
			msgs := p.FetchMessages(name, 1, p.cfg.JobsFetchTimeout)
			// A message fetched after shutdown began stays unacknowledged and
			// is redelivered once its ack wait expires.
			if len(msgs) == 0 || !p.IsRunning() {
				continue
			}
			for _, msg := range msgs {
				p.Post(func() { p.process(name, msg) })
			}
		}
	}
}

func (p *Processor) scheduleLoop() {
	for p.IsRunning() {
		msgs := p.FetchMessages(naming.ScheduledStream, p.cfg.SchedulerBatchSize, p.cfg.SchedulerFetchTimeout)
		if len(msgs) == 0 {
			continue
		}
		now := p.now()
		for _, msg := range msgs {
			p.reschedule(msg, now)
		}
	}
}

// reschedule republishes a due scheduled job onto its origin subject or puts
// it back with a delay until it is due.
func (p *Processor) reschedule(msg broker.Message, now time.Time) {
	headers := msg.Headers()
	stream := headers.Get(metadata.HeaderStream)
	subject := headers.Get(metadata.HeaderSubject)
	executeAt, err := strconv.ParseInt(headers.Get(metadata.HeaderExecuteAt), 10, 64)
	if subject == "" || err != nil {
		p.unresolved(msg, "", fmt.Errorf("%w: scheduled job without valid %s/%s headers",
			runtimeerrors.ErrMalformedPayload, metadata.HeaderSubject, metadata.HeaderExecuteAt))
		return
	}

	at := time.Unix(executeAt, 0)
	if now.Before(at) {
		if err := msg.NakWithDelay(at.Sub(now)); err != nil {
			p.Logger.Error("failed to delay scheduled job", err, logging.LogFields{"subject": subject})
		}
		return
	}

	forward := headers.Without(
		metadata.HeaderStream,
		metadata.HeaderSubject,
		metadata.HeaderExecuteAt,
		metadata.HeaderExpectedStream,
		metadata.HeaderMsgID,
	)
	_, err = p.client.Publish(context.Background(), subject, msg.Data(), broker.PublishOptions{
		Headers:        forward,
		MsgID:          headers.Get(metadata.HeaderMsgID),
		ExpectedStream: stream,
	})
	if err != nil {
		delay := p.retryDelay(msg)
		p.Logger.Error("failed to enqueue scheduled job", err, logging.LogFields{
			"subject": subject,
			"stream":  stream,
			"delay":   delay.String(),
		})
		if err := msg.NakWithDelay(delay); err != nil {
			p.Logger.Error("failed to delay scheduled job", err, logging.LogFields{"subject": subject})
		}
		return
	}
	if err := msg.Ack(); err != nil {
		p.Logger.Error("failed to ack scheduled job", err, logging.LogFields{"subject": subject})
	}
}

// process runs one job message end to end on a pool worker.
func (p *Processor) process(stream string, msg broker.Message) {
	env, err := DecodeEnvelope(msg.Data())
	if err != nil {
		p.unresolved(msg, "", err)
		return
	}
	def, err := p.registry.Resolve(env.Class)
	if err != nil {
		p.unresolved(msg, env.Class, err)
		return
	}
	env.Stream = stream

	attempt := uint64(1)
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
		attempt = meta.NumDelivered
	}

	log := p.Logger.With(logging.LogFields{"jid": env.JID, "class": env.Class, "stream": stream})
	info := JobInfo{JID: env.JID, Class: env.Class, Stream: stream, Attempt: attempt, StartedAt: p.now()}

	ctx, span := tracing.Start(context.Background(), "jetflow.job "+env.Class,
		tracing.AttrJID.String(env.JID),
		tracing.AttrClass.String(env.Class),
		tracing.AttrStream.String(stream),
		tracing.AttrAttempt.Int64(int64(attempt)),
	)

	log.Info("start", nil)
	p.hooks.start(info)

	err = p.perform(def, Context{
		Context: ctx,
		JID:     env.JID,
		Class:   env.Class,
		Stream:  stream,
		Attempt: attempt,
		Logger:  log,
	}, Args(env.Args), info, span, log)
	info.Duration = p.now().Sub(info.StartedAt)

	if err != nil {
		log.Debug("job error", logging.LogFields{"error": err.Error()})
		log.Info("fail", logging.LogFields{"elapsed": info.Duration.Seconds()})
		tracing.End(span, err)
		p.hooks.failed(info, err)
		p.handleFailure(msg, env, info, log)
		return
	}

	if err := msg.Ack(); err != nil {
		log.Error("failed to ack job", err, nil)
	}
	log.Info("done", logging.LogFields{"elapsed": info.Duration.Seconds()})
	tracing.End(span, nil)
	p.hooks.done(info)
}

// perform calls the handler. A panic is logged as a failure and re-raised; the
// message is left unacknowledged.
func (p *Processor) perform(def Definition, ctx Context, args Args, info JobInfo, span trace.Span, log logging.ServiceLogger) error {
	defer func() {
		if r := recover(); r != nil {
			info.Duration = p.now().Sub(info.StartedAt)
			perr := fmt.Errorf("panic: %v", r)
			log.Info("fail", logging.LogFields{"elapsed": info.Duration.Seconds()})
			tracing.End(span, perr)
			p.hooks.failed(info, perr)
			panic(r)
		}
	}()
	return def.Factory().Perform(ctx, args)
}

// handleFailure retries with backoff while attempts remain, then either
// dead-letters or terminates the message.
func (p *Processor) handleFailure(msg broker.Message, env *Envelope, info JobInfo, log logging.ServiceLogger) {
	if info.Attempt < env.MaxAttempts() {
		delay := Backoff(info.Attempt)
		if err := msg.NakWithDelay(delay); err != nil {
			log.Error("failed to schedule retry", err, nil)
			return
		}
		p.hooks.retry(info, delay)
		return
	}

	if !env.Dead {
		if err := msg.Term(); err != nil {
			log.Error("failed to terminate job", err, nil)
		}
		p.hooks.exhausted(info, false)
		return
	}

	_, err := broker.Publish(context.Background(), p.client, env.DeadSubject(), msg.Data(), nil)
	if err != nil {
		// Keep the job around so the dead-letter publish is attempted again.
		log.Error("failed to publish dead job", err, logging.LogFields{"subject": env.DeadSubject()})
		_ = msg.NakWithDelay(Backoff(info.Attempt))
		return
	}
	if err := msg.Ack(); err != nil {
		log.Error("failed to ack dead job", err, nil)
	}
	p.hooks.exhausted(info, true)
}

// unresolved handles payloads that cannot be dispatched according to the
// configured UnresolvedPolicy.
func (p *Processor) unresolved(msg broker.Message, class string, err error) {
	fields := logging.LogFields{"subject": msg.Subject()}
	if class != "" {
		fields["class"] = class
	}
	p.Logger.Error("unable to dispatch job", err, fields)
	p.hooks.unresolved(class, err)
	if p.cfg.UnresolvedPolicy == config.UnresolvedTerm {
		if termErr := msg.Term(); termErr != nil {
			p.Logger.Error("failed to terminate job", termErr, fields)
		}
	}
}

// retryDelay is the backoff for the message's current delivery count.
func (p *Processor) retryDelay(msg broker.Message) time.Duration {
	attempt := uint64(1)
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
		attempt = meta.NumDelivered
	}
	return Backoff(attempt)
}

// maxBackoffAttempt keeps attempt^4 seconds inside time.Duration.
const maxBackoffAttempt = 300

// Backoff is the redelivery delay after the given failed attempt:
// attempt^4 + 15 seconds. Attempts past maxBackoffAttempt get its delay.
func Backoff(attempt uint64) time.Duration {
	attempt = min(attempt, maxBackoffAttempt)
	n := time.Duration(attempt)
	return (n*n*n*n + 15) * time.Second
}
