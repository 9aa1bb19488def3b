package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/metadata"
	"github.com/drblury/jetflow/transport/memory"
)

func TestMessage(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	raw := memory.NewMessage("orders.created", []byte(`{"id":7}`),
		memory.WithHeaders(metadata.New("Trace", "abc")),
		memory.WithMetadata(broker.MessageMetadata{
			Stream:           "orders",
			StreamSequence:   100,
			ConsumerSequence: 50,
			NumDelivered:     2,
			NumPending:       5,
			Timestamp:        ts,
		}),
	)
	msg := NewMessage(raw, nil)

	assert.Equal(t, "orders.created", msg.Subject())
	assert.Equal(t, "abc", msg.Header("Trace"))
	assert.Equal(t, uint64(100), msg.StreamSequence())
	assert.Equal(t, uint64(50), msg.ConsumerSequence())
	assert.Equal(t, uint64(2), msg.NumDelivered())
	assert.Equal(t, uint64(5), msg.NumPending())
	assert.Equal(t, ts, msg.Timestamp())

	var order struct{ ID int }
	require.NoError(t, msg.Decode(&order))
	assert.Equal(t, 7, order.ID)

	v, err := msg.Value()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(7)}, v)

	fields := msg.LogFields()
	assert.Equal(t, uint64(100), fields["seq_stream"])
	assert.Equal(t, uint64(5), fields["num_pending"])

	require.NoError(t, msg.Ack())
	outcome, _ := raw.Outcome()
	assert.Equal(t, memory.OutcomeAck, outcome)
}

func TestMessageValueError(t *testing.T) {
	msg := NewMessage(memory.NewMessage("x.y", []byte("nope")), nil)
	_, err := msg.Value()
	assert.Error(t, err)
	_, again := msg.Value()
	assert.Equal(t, err, again)
}
