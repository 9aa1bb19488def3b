package jetstream

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/metadata"
)

type message struct {
	msg *nats.Msg
}

func (m *message) Subject() string { return m.msg.Subject }

func (m *message) Headers() metadata.Metadata { return metadata.FromNATS(m.msg.Header) }

func (m *message) Data() []byte { return m.msg.Data }

func (m *message) Metadata() (broker.MessageMetadata, error) {
	md, err := m.msg.Metadata()
	if err != nil {
		return broker.MessageMetadata{}, err
	}
	return convertMetadata(md), nil
}

func (m *message) Ack() error { return m.msg.Ack() }

func (m *message) Nak() error { return m.msg.Nak() }

func (m *message) NakWithDelay(delay time.Duration) error { return m.msg.NakWithDelay(delay) }

func (m *message) Term() error { return m.msg.Term() }

func (m *message) InProgress() error { return m.msg.InProgress() }

func convertMetadata(md *nats.MsgMetadata) broker.MessageMetadata {
	return broker.MessageMetadata{
		Stream:           md.Stream,
		Consumer:         md.Consumer,
		StreamSequence:   md.Sequence.Stream,
		ConsumerSequence: md.Sequence.Consumer,
		NumDelivered:     md.NumDelivered,
		NumPending:       md.NumPending,
		Timestamp:        md.Timestamp,
	}
}
