// Package streams implements stream processing: handlers receive batches of
// messages pulled from their own durable consumer.
package streams

import (
	"context"

	"github.com/drblury/jetflow/internal/runtime/logging"
)

// Handler processes a batch of messages. Settling the messages is up to the
// handler; a returned error is logged and otherwise ignored.
type Handler interface {
	Process(ctx Context, msgs []*Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx Context, msgs []*Message) error

func (f HandlerFunc) Process(ctx Context, msgs []*Message) error { return f(ctx, msgs) }

// OneHandler processes a single message.
type OneHandler interface {
	ProcessOne(ctx Context, msg *Message) error
}

// OneHandlerFunc adapts a function to OneHandler.
type OneHandlerFunc func(ctx Context, msg *Message) error

func (f OneHandlerFunc) ProcessOne(ctx Context, msg *Message) error { return f(ctx, msg) }

// Each turns a OneHandler into a Handler that walks the batch in order and
// stops at the first error. The current message is set on the context.
func Each(h OneHandler) Handler {
	return HandlerFunc(func(ctx Context, msgs []*Message) error {
		for _, msg := range msgs {
			c := ctx
			c.Message = msg
			c.Logger = ctx.Logger.With(msg.LogFields())
			if err := h.ProcessOne(c, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// Factory creates the handler instance of a stream.
type Factory func() Handler

// Context is passed to Process.
type Context struct {
	context.Context

	Stream string
	Logger logging.ServiceLogger
	// Message is the message being handled inside Each, nil otherwise.
	Message *Message
	// Publisher publishes with this stream's defaults. It may be nil.
	Publisher *Publisher
}

// Publish sends value on the handler's own stream using its defaults.
func (c Context) Publish(value any, opts ...PublishOption) error {
	if c.Publisher == nil {
		return errNoPublisher
	}
	_, err := c.Publisher.PublishStream(c, c.Stream, value, opts...)
	return err
}
