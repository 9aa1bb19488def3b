package streams

import (
	"context"
	"errors"
	"fmt"

	"github.com/drblury/jetflow/internal/runtime/broker"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
)

var errNoPublisher = errors.New("streams: context carries no publisher")

// PublishOption adjusts a single publish.
type PublishOption func(*publishConfig)

type publishConfig struct {
	subject    string
	headers    metadata.Metadata
	msgID      string
	serializer Serializer
}

// PublishTo overrides the subject.
func PublishTo(subject string) PublishOption {
	return func(c *publishConfig) { c.subject = subject }
}

// PublishHeaders adds headers to the message.
func PublishHeaders(h metadata.Metadata) PublishOption {
	return func(c *publishConfig) { c.headers = c.headers.WithAll(h) }
}

// PublishMsgID sets the broker deduplication key.
func PublishMsgID(id string) PublishOption {
	return func(c *publishConfig) { c.msgID = id }
}

// PublishSerializer overrides the serializer of the stream.
func PublishSerializer(s Serializer) PublishOption {
	return func(c *publishConfig) { c.serializer = s }
}

// Publisher serializes values and publishes them onto streams.
type Publisher struct {
	client   broker.Client
	registry *Registry
	logger   logging.ServiceLogger
}

func NewPublisher(client broker.Client, registry *Registry, logger logging.ServiceLogger) *Publisher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Publisher{client: client, registry: registry, logger: logging.OrNop(logger)}
}

// Publish sends value with the defaults registered for class.
func (p *Publisher) Publish(ctx context.Context, class string, value any, opts ...PublishOption) (broker.PubAck, error) {
	def, err := p.registry.Resolve(class)
	if err != nil {
		return broker.PubAck{}, err
	}
	return p.send(ctx, def.Options, value, opts)
}

// PublishStream sends value onto stream, using the defaults of the handler
// registered there or the stream defaults when there is none.
func (p *Publisher) PublishStream(ctx context.Context, stream string, value any, opts ...PublishOption) (broker.PubAck, error) {
	if stream == "" {
		return broker.PubAck{}, runtimeerrors.ErrStreamRequired
	}
	options := DefaultOptions(stream)
	if def, ok := p.registry.ForStream(stream); ok {
		options = def.Options
	}
	return p.send(ctx, options, value, opts)
}

func (p *Publisher) send(ctx context.Context, o Options, value any, opts []PublishOption) (broker.PubAck, error) {
	if p.client == nil {
		return broker.PubAck{}, runtimeerrors.ErrClientRequired
	}
	cfg := publishConfig{subject: o.PublishSubject(), serializer: o.Serializer}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	serializer := serializerOrDefault(cfg.serializer)
	data, err := serializer.Marshal(value)
	if err != nil {
		return broker.PubAck{}, fmt.Errorf("streams: encode for %s: %w", cfg.subject, err)
	}

	ack, err := p.client.Publish(ctx, cfg.subject, data, broker.PublishOptions{
		Headers:        cfg.headers.With(HeaderContentType, serializer.ContentType()),
		MsgID:          cfg.msgID,
		ExpectedStream: o.Stream,
	})
	if err != nil {
		return broker.PubAck{}, fmt.Errorf("streams: publish to %s: %w", cfg.subject, err)
	}
	p.logger.Debug("stream message published", logging.LogFields{
		"stream":   o.Stream,
		"subject":  cfg.subject,
		"sequence": ack.Sequence,
	})
	return ack, nil
}
