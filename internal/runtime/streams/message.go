package streams

import (
	"sync"
	"time"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/metadata"
)

// Message is a delivered stream message. The payload is decoded on demand.
type Message struct {
	raw        broker.Message
	serializer Serializer
	meta       broker.MessageMetadata

	once  sync.Once
	value any
	err   error
}

// NewMessage wraps raw. A nil serializer means JSON.
func NewMessage(raw broker.Message, serializer Serializer) *Message {
	m := &Message{raw: raw, serializer: serializerOrDefault(serializer)}
	m.meta, _ = raw.Metadata()
	return m
}

func (m *Message) Subject() string { return m.raw.Subject() }

func (m *Message) Headers() metadata.Metadata { return m.raw.Headers() }

func (m *Message) Header(key string) string { return m.raw.Headers().Get(key) }

func (m *Message) Data() []byte { return m.raw.Data() }

func (m *Message) StreamSequence() uint64 { return m.meta.StreamSequence }

func (m *Message) ConsumerSequence() uint64 { return m.meta.ConsumerSequence }

func (m *Message) NumDelivered() uint64 { return m.meta.NumDelivered }

func (m *Message) NumPending() uint64 { return m.meta.NumPending }

func (m *Message) Timestamp() time.Time { return m.meta.Timestamp }

func (m *Message) Raw() broker.Message { return m.raw }

func (m *Message) Ack() error { return m.raw.Ack() }

func (m *Message) Nak() error { return m.raw.Nak() }

func (m *Message) NakWithDelay(d time.Duration) error { return m.raw.NakWithDelay(d) }

func (m *Message) Term() error { return m.raw.Term() }

func (m *Message) InProgress() error { return m.raw.InProgress() }

// Decode unmarshals the payload into v with the stream's serializer.
func (m *Message) Decode(v any) error {
	return m.serializer.Unmarshal(m.raw.Data(), v)
}

// Value decodes the payload into a generic value once and caches the result.
// It only works with serializers that accept *any, such as JSON.
func (m *Message) Value() (any, error) {
	m.once.Do(func() {
		var v any
		m.err = m.serializer.Unmarshal(m.raw.Data(), &v)
		m.value = v
	})
	return m.value, m.err
}

// LogFields returns the delivery metadata as log fields.
func (m *Message) LogFields() logging.LogFields {
	return logging.LogFields{
		"stream":        m.meta.Stream,
		"seq_stream":    m.meta.StreamSequence,
		"seq_consumer":  m.meta.ConsumerSequence,
		"num_delivered": m.meta.NumDelivered,
		"num_pending":   m.meta.NumPending,
		"timestamp":     m.meta.Timestamp,
	}
}
