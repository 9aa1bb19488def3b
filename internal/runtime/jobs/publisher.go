package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
	"github.com/drblury/jetflow/internal/runtime/naming"
)

// Publisher enqueues jobs. Per-call options are applied over the options the
// class was registered with.
type Publisher struct {
	client   broker.Client
	registry *Registry
	logger   logging.ServiceLogger
	now      func() time.Time
}

// NewPublisher creates a publisher. client may be nil when only PerformSync is used.
func NewPublisher(client broker.Client, registry *Registry, logger logging.ServiceLogger) *Publisher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Publisher{
		client:   client,
		registry: registry,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Build creates the envelope Publish would send.
func (p *Publisher) Build(class string, args []any, opts ...Option) (*Envelope, error) {
	return NewEnvelope(class, args, p.registry.Options(class).Apply(opts...))
}

// Publish enqueues the job for immediate execution on "<stream>.<class>". The
// job id is the deduplication key and the publish fails unless the subject
// belongs to the job's stream.
func (p *Publisher) Publish(ctx context.Context, class string, args []any, opts ...Option) (*Envelope, error) {
	env, err := p.Build(class, args, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.send(ctx, env.Subject(), env, broker.PublishOptions{
		MsgID:          env.JID,
		ExpectedStream: env.Stream,
	}); err != nil {
		return nil, err
	}
	return env, nil
}

// PublishAt enqueues the job on the scheduled stream. It becomes eligible on
// its own stream no earlier than at, with second precision.
func (p *Publisher) PublishAt(ctx context.Context, class string, at time.Time, args []any, opts ...Option) (*Envelope, error) {
	env, err := p.Build(class, args, opts...)
	if err != nil {
		return nil, err
	}
	headers := metadata.New(
		metadata.HeaderStream, env.Stream,
		metadata.HeaderSubject, env.Subject(),
		metadata.HeaderExecuteAt, strconv.FormatInt(at.Unix(), 10),
	)
	if err := p.send(ctx, naming.ScheduledSubject(class), env, broker.PublishOptions{
		Headers:        headers,
		MsgID:          env.JID,
		ExpectedStream: naming.ScheduledStream,
	}); err != nil {
		return nil, err
	}
	return env, nil
}

// PublishIn is PublishAt relative to now.
func (p *Publisher) PublishIn(ctx context.Context, class string, delay time.Duration, args []any, opts ...Option) (*Envelope, error) {
	return p.PublishAt(ctx, class, p.now().Add(delay), args, opts...)
}

// PerformSync runs the job in the calling goroutine. The arguments take the
// same encode and decode round trip as a published job.
func (p *Publisher) PerformSync(ctx context.Context, class string, args []any, opts ...Option) error {
	env, err := p.Build(class, args, opts...)
	if err != nil {
		return err
	}
	payload, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("jobs: encode %s: %w", class, err)
	}
	decoded, err := DecodeEnvelope(payload)
	if err != nil {
		return err
	}
	def, err := p.registry.Resolve(decoded.Class)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return def.Factory().Perform(Context{
		Context: ctx,
		JID:     decoded.JID,
		Class:   decoded.Class,
		Stream:  env.Stream,
		Attempt: 1,
		Logger:  p.logger.With(logging.LogFields{"jid": decoded.JID, "class": decoded.Class}),
	}, Args(decoded.Args))
}

func (p *Publisher) send(ctx context.Context, subject string, env *Envelope, opts broker.PublishOptions) error {
	if p.client == nil {
		return runtimeerrors.ErrClientRequired
	}
	payload, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("jobs: encode %s: %w", env.Class, err)
	}
	ack, err := p.client.Publish(ctx, subject, payload, opts)
	if err != nil {
		return fmt.Errorf("jobs: publish %s to %s: %w", env.Class, subject, err)
	}
	p.logger.Debug("job published", logging.LogFields{
		"jid":       env.JID,
		"class":     env.Class,
		"subject":   subject,
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	})
	return nil
}
