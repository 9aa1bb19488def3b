// Package jetstream implements the broker client over NATS JetStream.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
	"github.com/drblury/jetflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

// ClientName is announced to the NATS server.
const ClientName = "jetflow"

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build connects to cfg.NATSURL.
func Build(_ context.Context, cfg *config.Config, logger logging.ServiceLogger) (broker.Client, error) {
	url := config.DefaultNATSURL
	if cfg != nil && cfg.NATSURL != "" {
		url = cfg.NATSURL
	}
	return New(url, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

var (
	_ broker.Client           = (*Client)(nil)
	_ transport.StreamUpdater = (*Client)(nil)
)

// Client is a broker.Client backed by a NATS connection.
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger logging.ServiceLogger

	mu     sync.Mutex
	closed bool
}

// New connects to url and opens a JetStream context.
func New(url string, logger logging.ServiceLogger) (*Client, error) {
	logger = logging.OrNop(logger)
	nc, err := nats.Connect(url, connectOptions(logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &Client{nc: nc, js: js, logger: logger}, nil
}

func connectOptions(logger logging.ServiceLogger) []nats.Option {
	return []nats.Option{
		nats.Name(ClientName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", logging.LogFields{"url": nc.ConnectedUrlRedacted()})
		}),
	}
}

// EnsureStream creates the stream when the server does not know it. An
// existing stream is left untouched.
func (c *Client) EnsureStream(ctx context.Context, name string, spec config.StreamSpec) error {
	if name == "" {
		return runtimeerrors.ErrStreamRequired
	}
	if _, err := c.js.StreamInfo(name, jsOpts(ctx)...); err == nil {
		c.logger.Debug("JetStream stream exists", logging.LogFields{"stream": name})
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}
	if _, err := c.js.AddStream(streamConfig(name, spec), jsOpts(ctx)...); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	c.logger.Info("JetStream stream created", logging.LogFields{"stream": name, "subjects": spec.Subjects})
	return nil
}

// UpdateStream implements transport.StreamUpdater. It applies spec to an
// existing stream and creates the stream when it is missing.
func (c *Client) UpdateStream(ctx context.Context, name string, spec config.StreamSpec) error {
	if name == "" {
		return runtimeerrors.ErrStreamRequired
	}
	cfg := streamConfig(name, spec)
	if _, err := c.js.UpdateStream(cfg, jsOpts(ctx)...); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to update stream %s: %w", name, err)
		}
		if _, err := c.js.AddStream(cfg, jsOpts(ctx)...); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}
		c.logger.Info("JetStream stream created", logging.LogFields{"stream": name, "subjects": cfg.Subjects})
		return nil
	}
	c.logger.Info("JetStream stream updated", logging.LogFields{"stream": name, "subjects": cfg.Subjects})
	return nil
}

// Publish stores payload on subject.
func (c *Client) Publish(ctx context.Context, subject string, payload []byte, opts broker.PublishOptions) (broker.PubAck, error) {
	if subject == "" {
		return broker.PubAck{}, runtimeerrors.ErrSubjectRequired
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  metadata.ToNATS(opts.Headers.Without(metadata.HeaderMsgID, metadata.HeaderExpectedStream)),
	}
	pubOpts := make([]nats.PubOpt, 0, 3)
	if opts.MsgID != "" {
		pubOpts = append(pubOpts, nats.MsgId(opts.MsgID))
	}
	if opts.ExpectedStream != "" {
		pubOpts = append(pubOpts, nats.ExpectStream(opts.ExpectedStream))
	}
	if hasDeadline(ctx) {
		pubOpts = append(pubOpts, nats.Context(ctx))
	}

	ack, err := c.js.PublishMsg(msg, pubOpts...)
	if err != nil {
		return broker.PubAck{}, publishError(subject, opts.ExpectedStream, err)
	}
	return broker.PubAck{Stream: ack.Stream, Sequence: ack.Sequence, Duplicate: ack.Duplicate}, nil
}

// PullSubscribe creates or updates the durable consumer and binds a pull
// subscription to it.
func (c *Client) PullSubscribe(ctx context.Context, subjects []string, durable string, policy config.ConsumerPolicy) (broker.Consumer, error) {
	if len(subjects) == 0 {
		return nil, runtimeerrors.ErrSubjectRequired
	}
	stream, err := c.js.StreamNameBySubject(subjects[0], jsOpts(ctx)...)
	if err != nil {
		if errors.Is(err, nats.ErrNoMatchingStream) || errors.Is(err, nats.ErrStreamNotFound) {
			return nil, &runtimeerrors.StreamNotFoundError{Stream: subjects[0], Cause: err}
		}
		return nil, fmt.Errorf("failed to resolve stream for %s: %w", subjects[0], err)
	}

	cfg := consumerConfig(durable, subjects, policy)
	if _, err := c.js.ConsumerInfo(stream, durable, jsOpts(ctx)...); err == nil {
		if _, err := c.js.UpdateConsumer(stream, cfg, jsOpts(ctx)...); err != nil {
			// Some fields, the deliver policy among them, cannot change on an
			// existing consumer. Keep using it as is.
			c.logger.Debug("keeping existing consumer", logging.LogFields{
				"stream":   stream,
				"consumer": durable,
				"error":    err.Error(),
			})
		}
	} else if _, err := c.js.AddConsumer(stream, cfg, jsOpts(ctx)...); err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	subject := ""
	if len(subjects) == 1 {
		subject = subjects[0]
	}
	sub, err := c.js.PullSubscribe(subject, durable, nats.Bind(stream, durable))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", durable, err)
	}
	return &consumer{sub: sub}, nil
}

// StreamState implements transport.StreamInspector.
func (c *Client) StreamState(ctx context.Context, name string) (transport.StreamState, error) {
	info, err := c.js.StreamInfo(name, jsOpts(ctx)...)
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			return transport.StreamState{}, &runtimeerrors.StreamNotFoundError{Stream: name, Cause: err}
		}
		return transport.StreamState{}, err
	}
	return transport.StreamState{
		Name:      info.Config.Name,
		Subjects:  info.Config.Subjects,
		Messages:  info.State.Msgs,
		Consumers: info.State.Consumers,
	}, nil
}

// Capabilities implements transport.CapabilitiesProvider.
func (c *Client) Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Close drains pending publishes and closes the connection. Durable
// consumers stay on the server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

type consumer struct {
	sub *nats.Subscription
}

func (c *consumer) Fetch(batch int, timeout time.Duration) ([]broker.Message, error) {
	if batch <= 0 {
		batch = 1
	}
	msgs, err := c.sub.Fetch(batch, nats.MaxWait(timeout))
	if err != nil {
		if isNoMessages(err) {
			return nil, broker.ErrNoMessages
		}
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, broker.ErrNoMessages
	}
	out := make([]broker.Message, len(msgs))
	for i, m := range msgs {
		out[i] = &message{msg: m}
	}
	return out, nil
}

func isNoMessages(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// errCodeStreamNotMatch is the JetStream API error for a failed expected-stream check.
const errCodeStreamNotMatch nats.ErrorCode = 10060

func publishError(subject, expected string, err error) error {
	var apiErr *nats.APIError
	switch {
	case errors.Is(err, nats.ErrNoStreamResponse), errors.Is(err, nats.ErrStreamNotFound):
		return &runtimeerrors.StreamNotFoundError{Stream: orSubject(expected, subject), Cause: err}
	case errors.As(err, &apiErr) && apiErr.ErrorCode == errCodeStreamNotMatch:
		return &runtimeerrors.StreamNotFoundError{Stream: orSubject(expected, subject), Cause: err}
	}
	return fmt.Errorf("failed to publish to %s: %w", subject, err)
}

func orSubject(stream, subject string) string {
	if stream != "" {
		return stream
	}
	return subject
}

func hasDeadline(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Deadline()
	return ok
}

// jsOpts forwards ctx to JetStream API calls. NATS requests need a deadline,
// so a context without one is not forwarded.
func jsOpts(ctx context.Context) []nats.JSOpt {
	if !hasDeadline(ctx) {
		return nil
	}
	return []nats.JSOpt{nats.Context(ctx)}
}
