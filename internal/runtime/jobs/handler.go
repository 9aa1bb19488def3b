package jobs

import (
	"context"
	"fmt"

	"github.com/drblury/jetflow/internal/runtime/jsoncodec"
	"github.com/drblury/jetflow/internal/runtime/logging"
)

// Handler performs one job. Returning an error marks the attempt as failed and
// hands the job to the retry policy. A panic is not recovered.
type Handler interface {
	Perform(ctx Context, args Args) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx Context, args Args) error

// Perform calls f.
func (f HandlerFunc) Perform(ctx Context, args Args) error {
	return f(ctx, args)
}

// Factory creates a fresh handler instance for every job.
type Factory func() Handler

// Context is passed to Perform. It carries the delivery details of the job.
type Context struct {
	context.Context

	JID    string
	Class  string
	Stream string
	// Attempt is the broker delivery count, starting at 1.
	Attempt uint64
	Logger  logging.ServiceLogger
}

// Args are the positional job arguments, still encoded.
type Args []jsoncodec.RawMessage

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("jobs: argument %d out of range (have %d)", i, len(a))
	}
	return jsoncodec.Unmarshal(a[i], v)
}

// Raw returns argument i untouched, or nil when it does not exist.
func (a Args) Raw(i int) jsoncodec.RawMessage {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}
