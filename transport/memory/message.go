package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/metadata"
)

// ErrAlreadySettled is returned when a message is acked, naked or termed twice.
var ErrAlreadySettled = errors.New("memory: message already settled")

// Outcome names how a message was settled.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeAck  Outcome = "ack"
	OutcomeNak  Outcome = "nak"
	OutcomeTerm Outcome = "term"
)

// Message is a delivered message. It records its settlement so tests can
// assert on it.
type Message struct {
	subject string
	data    []byte
	headers metadata.Metadata
	meta    broker.MessageMetadata

	consumer *Consumer
	delivery *delivery

	mu         sync.Mutex
	outcome    Outcome
	delay      time.Duration
	inProgress int
}

// MessageOption configures a detached message built by NewMessage.
type MessageOption func(*Message)

// WithHeaders sets the message headers.
func WithHeaders(h metadata.Metadata) MessageOption {
	return func(m *Message) { m.headers = h.Clone() }
}

// WithMetadata sets the delivery metadata.
func WithMetadata(meta broker.MessageMetadata) MessageOption {
	return func(m *Message) { m.meta = meta }
}

// WithDelivered sets the delivery count.
func WithDelivered(n uint64) MessageOption {
	return func(m *Message) { m.meta.NumDelivered = n }
}

// NewMessage builds a message that is not attached to any consumer. Its
// settlement is recorded but has no further effect.
func NewMessage(subject string, data []byte, opts ...MessageOption) *Message {
	m := &Message{
		subject: subject,
		data:    data,
		headers: metadata.Metadata{},
		meta:    broker.MessageMetadata{NumDelivered: 1, Timestamp: time.Now()},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Message) Subject() string { return m.subject }

func (m *Message) Headers() metadata.Metadata { return m.headers.Clone() }

func (m *Message) Data() []byte { return m.data }

func (m *Message) Metadata() (broker.MessageMetadata, error) { return m.meta, nil }

func (m *Message) Ack() error { return m.settle(OutcomeAck, 0) }

func (m *Message) Nak() error { return m.settle(OutcomeNak, 0) }

func (m *Message) NakWithDelay(delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return m.settle(OutcomeNak, delay)
}

func (m *Message) Term() error { return m.settle(OutcomeTerm, 0) }

func (m *Message) InProgress() error {
	m.mu.Lock()
	if m.outcome != OutcomeNone {
		m.mu.Unlock()
		return ErrAlreadySettled
	}
	m.inProgress++
	m.mu.Unlock()
	if m.consumer != nil {
		m.consumer.touch(m.delivery, m.meta.NumDelivered)
	}
	return nil
}

func (m *Message) settle(outcome Outcome, delay time.Duration) error {
	m.mu.Lock()
	if m.outcome != OutcomeNone {
		m.mu.Unlock()
		return ErrAlreadySettled
	}
	m.outcome = outcome
	m.delay = delay
	m.mu.Unlock()

	if m.consumer != nil {
		m.consumer.settle(m.delivery, m.meta.NumDelivered, outcome != OutcomeNak, delay)
	}
	return nil
}

// Outcome returns how the message was settled and, for a nak, its delay.
func (m *Message) Outcome() (Outcome, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.delay
}

// InProgressCount returns how often InProgress was called.
func (m *Message) InProgressCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inProgress
}
