// Package jobs implements background jobs: the wire envelope, the handler
// registry, the publisher and the job processor with its weighted fetch loop,
// schedule loop and retry/dead-letter decision.
package jobs

import (
	"fmt"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/ids"
	"github.com/drblury/jetflow/internal/runtime/jsoncodec"
	"github.com/drblury/jetflow/internal/runtime/naming"
)

// Default job options.
const (
	DefaultStream = "default"
	DefaultRetry  = 3
	DefaultDead   = true
)

// Options are the per-class dispatch settings.
type Options struct {
	// Stream is the logical stream the job is published to.
	Stream string
	// Retry is how many times a failed job is retried.
	Retry int
	// Dead sends exhausted jobs to the dead-letter subject instead of dropping them.
	Dead bool
}

// DefaultOptions returns stream "default", three retries and dead-lettering on.
func DefaultOptions() Options {
	return Options{Stream: DefaultStream, Retry: DefaultRetry, Dead: DefaultDead}
}

// Option overrides one field of Options.
type Option func(*Options)

// WithStream sets the target stream.
func WithStream(stream string) Option {
	return func(o *Options) { o.Stream = stream }
}

// WithRetry sets the retry limit. Negative values mean no retries.
func WithRetry(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = 0
		}
		o.Retry = n
	}
}

// WithDead toggles dead-lettering.
func WithDead(dead bool) Option {
	return func(o *Options) { o.Dead = dead }
}

// Apply returns o with opts applied in order.
func (o Options) Apply(opts ...Option) Options {
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Envelope is the job payload. Field order is the wire order.
type Envelope struct {
	JID   string               `json:"jid"`
	Class string               `json:"class"`
	Args  []jsoncodec.RawMessage `json:"args"`
	Retry int                  `json:"retry"`
	Dead  bool                 `json:"dead"`

	// Stream is derived from the options and never serialized.
	Stream string `json:"-"`
}

// NewEnvelope encodes args and assigns a fresh job id.
func NewEnvelope(class string, args []any, opts Options) (*Envelope, error) {
	if class == "" {
		return nil, runtimeerrors.ErrClassRequired
	}
	if opts.Stream == "" {
		return nil, runtimeerrors.ErrStreamRequired
	}
	raw, err := jsoncodec.MarshalAll(args)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode args for %s: %w", class, err)
	}
	return &Envelope{
		JID:    ids.NewJID(),
		Class:  class,
		Args:   raw,
		Retry:  opts.Retry,
		Dead:   opts.Dead,
		Stream: opts.Stream,
	}, nil
}

// Subject is "<stream>.<normalized class>".
func (e *Envelope) Subject() string {
	return naming.Subject(e.Stream, e.Class)
}

// DeadSubject is "jobs.dead.<normalized class>".
func (e *Envelope) DeadSubject() string {
	return naming.DeadSubject(e.Class)
}

// MaxAttempts is the retry limit plus the first attempt.
func (e *Envelope) MaxAttempts() uint64 {
	if e.Retry < 0 {
		return 1
	}
	return uint64(e.Retry) + 1
}

// Marshal encodes the envelope as JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return jsoncodec.Marshal(e)
}

// DecodeEnvelope parses a job payload. Anything that is not a JSON object
// carrying a class is ErrMalformedPayload.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", runtimeerrors.ErrMalformedPayload, err)
	}
	if env.Class == "" {
		return nil, fmt.Errorf("%w: missing class", runtimeerrors.ErrMalformedPayload)
	}
	return &env, nil
}
