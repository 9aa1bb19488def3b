// Package broker defines the contract the engine needs from a persistent
// pull-consumer message broker. transport/jetstream implements it over NATS
// JetStream and transport/memory implements it in-process.
package broker

import (
	"context"
	"time"

	"github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/metadata"
)

// ErrNoMessages is returned by Consumer.Fetch when nothing arrived within the
// timeout. It is an expected condition, not a failure.
var ErrNoMessages = runtimeerrors.ErrNoMessages

// Client publishes messages and creates pull consumers.
type Client interface {
	// EnsureStream creates the stream if it is missing. An existing stream is
	// left as is.
	EnsureStream(ctx context.Context, name string, spec config.StreamSpec) error
	// Publish stores payload on subject. It fails when no stream captures the
	// subject or when opts.ExpectedStream names a different stream.
	Publish(ctx context.Context, subject string, payload []byte, opts PublishOptions) (PubAck, error)
	// PullSubscribe binds a durable pull consumer filtered on subjects.
	PullSubscribe(ctx context.Context, subjects []string, durable string, policy config.ConsumerPolicy) (Consumer, error)
	// Close releases the connection.
	Close() error
}

// PublishOptions carries the optional publish arguments.
type PublishOptions struct {
	Headers metadata.Metadata
	// MsgID is the broker's deduplication key.
	MsgID string
	// ExpectedStream makes the publish fail unless the message lands on that stream.
	ExpectedStream string
}

// PubAck acknowledges a stored message.
type PubAck struct {
	Stream    string
	Sequence  uint64
	Duplicate bool
}

// Consumer is a durable cursor that hands out messages on request.
type Consumer interface {
	// Fetch returns up to batch messages, waiting at most timeout. It returns
	// ErrNoMessages when none arrived.
	Fetch(batch int, timeout time.Duration) ([]Message, error)
}

// Message is a delivered broker message together with its settlement operations.
type Message interface {
	Subject() string
	Headers() metadata.Metadata
	Data() []byte
	Metadata() (MessageMetadata, error)

	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
	InProgress() error
}

// MessageMetadata is the delivery information attached to a message.
type MessageMetadata struct {
	Stream           string
	Consumer         string
	StreamSequence   uint64
	ConsumerSequence uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
}

// Publish is a shorthand for publishing with headers only.
func Publish(ctx context.Context, c Client, subject string, payload []byte, headers metadata.Metadata) (PubAck, error) {
	return c.Publish(ctx, subject, payload, PublishOptions{Headers: headers})
}
