package streams

import (
	"time"

	"github.com/drblury/jetflow/internal/runtime/config"
	"github.com/drblury/jetflow/internal/runtime/naming"
)

// Stream handler defaults.
const (
	DefaultBatchSize      = 100
	DefaultFetchTimeout   = time.Second
	DefaultAckPolicy      = "explicit"
	DefaultMaxDeliver     = 1
	DefaultMaxAckPending  = 3
	DefaultAckWait        = 30 * time.Second
	DefaultSubjectPattern = "%{name}.default"
)

// Options configure a stream handler: what its consumer reads and how its
// publisher writes.
type Options struct {
	Stream string
	// Subjects filter the consumer. Defaults to "<stream>.>".
	Subjects []string
	// Subject is the default publish subject. "%{name}" is replaced by the stream.
	Subject       string
	BatchSize     int
	FetchTimeout  time.Duration
	StartPosition string
	Consumer      config.ConsumerPolicy
	Serializer    Serializer
}

// DefaultOptions returns the defaults for stream.
func DefaultOptions(stream string) Options {
	return Options{
		Stream:       stream,
		Subject:      DefaultSubjectPattern,
		BatchSize:    DefaultBatchSize,
		FetchTimeout: DefaultFetchTimeout,
		Consumer: config.ConsumerPolicy{
			AckPolicy:     DefaultAckPolicy,
			MaxDeliver:    DefaultMaxDeliver,
			MaxAckPending: DefaultMaxAckPending,
			AckWait:       DefaultAckWait,
		},
	}
}

// Option overrides one field of Options.
type Option func(*Options)

func WithStream(stream string) Option {
	return func(o *Options) { o.Stream = stream }
}

func WithSubjects(subjects ...string) Option {
	return func(o *Options) { o.Subjects = append([]string(nil), subjects...) }
}

func WithPublishSubject(subject string) Option {
	return func(o *Options) { o.Subject = subject }
}

func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(o *Options) { o.FetchTimeout = d }
}

// WithStartPosition accepts "all", "new", "last" or an RFC3339 timestamp.
func WithStartPosition(position string) Option {
	return func(o *Options) { o.StartPosition = position }
}

// WithConsumer merges the non-zero fields of policy into the consumer policy.
func WithConsumer(policy config.ConsumerPolicy) Option {
	return func(o *Options) { o.Consumer = o.Consumer.Merge(policy) }
}

func WithSerializer(s Serializer) Option {
	return func(o *Options) { o.Serializer = s }
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

// Merge applies an operator override from the configuration file. Only the
// fields the override sets replace the registered ones.
func (o Options) Merge(spec config.StreamConsumerSpec) Options {
	if spec.Stream != "" {
		o.Stream = spec.Stream
	}
	if len(spec.Subjects) > 0 {
		o.Subjects = append([]string(nil), spec.Subjects...)
	}
	if spec.BatchSize > 0 {
		o.BatchSize = spec.BatchSize
	}
	if spec.FetchTimeout > 0 {
		o.FetchTimeout = spec.FetchTimeout
	}
	if spec.StartPosition != "" {
		o.StartPosition = spec.StartPosition
	}
	o.Consumer = o.Consumer.Merge(spec.Consumer)
	return o
}

// ConsumerSubjects returns the consumer filter, defaulting to "<stream>.>".
func (o Options) ConsumerSubjects() []string {
	if len(o.Subjects) == 0 {
		return []string{naming.Wildcard(o.Stream)}
	}
	out := make([]string, len(o.Subjects))
	for i, s := range o.Subjects {
		out[i] = naming.Format(s, o.Stream)
	}
	return out
}

// PublishSubject returns the default publish subject with "%{name}" resolved.
func (o Options) PublishSubject() string {
	subject := o.Subject
	if subject == "" {
		subject = DefaultSubjectPattern
	}
	return naming.Format(subject, o.Stream)
}

// ConsumerPolicy returns the consumer policy with the start position resolved.
// An explicit deliver policy is kept when no start position is set.
func (o Options) ConsumerPolicy() config.ConsumerPolicy {
	if o.StartPosition == "" && o.Consumer.DeliverPolicy != "" {
		return o.Consumer
	}
	return o.Consumer.Merge(config.DeliverPolicy(o.StartPosition))
}
