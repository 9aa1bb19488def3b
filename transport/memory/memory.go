// Package memory provides an in-process broker with pull consumers,
// acknowledgements, delayed redelivery, termination and deduplication.
// Nothing is persisted; it is meant for tests and local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
	"github.com/drblury/jetflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "memory"

// ErrClosed is returned once the broker has been closed.
var ErrClosed = errors.New("memory: broker closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.MemoryCapabilities)
}

// Build creates a new in-memory broker.
func Build(_ context.Context, _ *config.Config, _ logging.ServiceLogger) (broker.Client, error) {
	return New(), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

var (
	_ broker.Client           = (*Broker)(nil)
	_ transport.StreamUpdater = (*Broker)(nil)
)

// Broker is the in-memory broker. The zero value is not usable; call New.
type Broker struct {
	mu        sync.Mutex
	streams   map[string]*stream
	consumers map[string]*Consumer
	changed   chan struct{}
	closed    bool
	now       func() time.Time
}

type stream struct {
	name  string
	spec  config.StreamSpec
	msgs  []*stored
	dedup map[string]uint64
}

type stored struct {
	seq     uint64
	subject string
	data    []byte
	headers metadata.Metadata
	at      time.Time
}

// StoredMessage is a copy of a message held by a stream.
type StoredMessage struct {
	Stream   string
	Sequence uint64
	Subject  string
	Data     []byte
	Headers  metadata.Metadata
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		streams:   make(map[string]*stream),
		consumers: make(map[string]*Consumer),
		changed:   make(chan struct{}),
		now:       time.Now,
	}
}

// signal wakes every waiting Fetch. Callers hold b.mu.
func (b *Broker) signal() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// EnsureStream creates the stream when it does not exist yet.
func (b *Broker) EnsureStream(_ context.Context, name string, spec config.StreamSpec) error {
	if name == "" {
		return runtimeerrors.ErrStreamRequired
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.streams[name]; ok {
		return nil
	}
	if len(spec.Subjects) == 0 {
		spec.Subjects = []string{name + ".>"}
	}
	b.streams[name] = &stream{name: name, spec: spec, dedup: make(map[string]uint64)}
	return nil
}

// UpdateStream replaces the configuration of an existing stream, keeping its
// messages and consumers, and creates the stream when it is missing.
func (b *Broker) UpdateStream(ctx context.Context, name string, spec config.StreamSpec) error {
	if name == "" {
		return runtimeerrors.ErrStreamRequired
	}
	b.mu.Lock()
	st, ok := b.streams[name]
	if !ok {
		b.mu.Unlock()
		return b.EnsureStream(ctx, name, spec)
	}
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if len(spec.Subjects) == 0 {
		spec.Subjects = []string{name + ".>"}
	}
	st.spec = spec
	return nil
}

// Publish appends payload to the stream capturing subject.
func (b *Broker) Publish(_ context.Context, subject string, payload []byte, opts broker.PublishOptions) (broker.PubAck, error) {
	if subject == "" {
		return broker.PubAck{}, runtimeerrors.ErrSubjectRequired
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.PubAck{}, ErrClosed
	}

	st := b.streamFor(subject)
	if st == nil {
		return broker.PubAck{}, fmt.Errorf("memory: no stream captures subject %q", subject)
	}
	if opts.ExpectedStream != "" && opts.ExpectedStream != st.name {
		return broker.PubAck{}, &runtimeerrors.StreamNotFoundError{
			Stream: opts.ExpectedStream,
			Cause:  fmt.Errorf("subject %q belongs to stream %q", subject, st.name),
		}
	}
	if opts.MsgID != "" {
		if seq, dup := st.dedup[opts.MsgID]; dup {
			return broker.PubAck{Stream: st.name, Sequence: seq, Duplicate: true}, nil
		}
	}

	headers := opts.Headers.Clone()
	if opts.MsgID != "" {
		headers[metadata.HeaderMsgID] = opts.MsgID
	}
	msg := &stored{
		seq:     uint64(len(st.msgs)) + 1,
		subject: subject,
		data:    append([]byte(nil), payload...),
		headers: headers,
		at:      b.now(),
	}
	st.msgs = append(st.msgs, msg)
	if opts.MsgID != "" {
		st.dedup[opts.MsgID] = msg.seq
	}
	b.signal()
	return broker.PubAck{Stream: st.name, Sequence: msg.seq}, nil
}

// PullSubscribe returns the durable consumer, creating it on first use.
func (b *Broker) PullSubscribe(_ context.Context, subjects []string, durable string, policy config.ConsumerPolicy) (broker.Consumer, error) {
	if len(subjects) == 0 {
		return nil, runtimeerrors.ErrSubjectRequired
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	st := b.streamFor(subjects[0])
	if st == nil {
		return nil, &runtimeerrors.StreamNotFoundError{Stream: subjects[0]}
	}
	key := st.name + "/" + durable
	if c, ok := b.consumers[key]; ok && durable != "" {
		return c, nil
	}

	c := &Consumer{
		broker:  b,
		stream:  st,
		durable: durable,
		filters: append([]string(nil), subjects...),
		policy:  policy,
		tracked: make(map[uint64]*delivery),
	}
	c.cursor = c.startIndex()
	b.consumers[key] = c
	return c, nil
}

// Close stops the broker. Pending fetches return ErrClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.signal()
	return nil
}

// Messages returns a copy of everything stored on stream.
func (b *Broker) Messages(streamName string) []StoredMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[streamName]
	if !ok {
		return nil
	}
	out := make([]StoredMessage, 0, len(st.msgs))
	for _, m := range st.msgs {
		out = append(out, StoredMessage{
			Stream:   st.name,
			Sequence: m.seq,
			Subject:  m.subject,
			Data:     append([]byte(nil), m.data...),
			Headers:  m.headers.Clone(),
		})
	}
	return out
}

// StreamState implements transport.StreamInspector.
func (b *Broker) StreamState(_ context.Context, name string) (transport.StreamState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[name]
	if !ok {
		return transport.StreamState{}, &runtimeerrors.StreamNotFoundError{Stream: name}
	}
	consumers := 0
	for _, c := range b.consumers {
		if c.stream == st {
			consumers++
		}
	}
	return transport.StreamState{
		Name:      st.name,
		Subjects:  append([]string(nil), st.spec.Subjects...),
		Messages:  uint64(len(st.msgs)),
		Consumers: consumers,
	}, nil
}

// Capabilities implements transport.CapabilitiesProvider.
func (b *Broker) Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}

// streamFor returns the stream capturing subject, preferring names in sorted
// order when several overlap. Callers hold b.mu.
func (b *Broker) streamFor(subject string) *stream {
	names := make([]string, 0, len(b.streams))
	for name := range b.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := b.streams[name]
		for _, pattern := range st.spec.Subjects {
			if pattern == subject || SubjectMatches(pattern, subject) {
				return st
			}
		}
	}
	return nil
}

// SubjectMatches reports whether subject matches pattern, where "*" matches a
// single token and a trailing ">" matches one or more tokens.
func SubjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
