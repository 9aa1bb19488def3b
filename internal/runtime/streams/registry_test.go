package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
)

func nopBatch(Context, []*Message) error { return nil }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFunc("OrderEvents", nopBatch))
	require.NoError(t, r.RegisterOne("Audit", func(Context, *Message) error { return nil }, WithStream("audit_log"), WithBatchSize(5)))

	def, err := r.Resolve("OrderEvents")
	require.NoError(t, err)
	assert.Equal(t, "order_events", def.Options.Stream)
	assert.Equal(t, "order_events.default", def.Options.PublishSubject())

	audit, ok := r.ForStream("audit_log")
	require.True(t, ok)
	assert.Equal(t, "Audit", audit.Class)
	assert.Equal(t, 5, audit.Options.BatchSize)

	_, ok = r.ForStream("missing")
	assert.False(t, ok)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "Audit", defs[0].Class)
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.RegisterFunc("", nopBatch), runtimeerrors.ErrClassRequired)
	assert.ErrorIs(t, r.Register("A", nil), runtimeerrors.ErrHandlerRequired)
	assert.ErrorIs(t, r.RegisterFunc("A", nopBatch, WithStream("")), runtimeerrors.ErrStreamRequired)

	_, err := r.Resolve("Nope")
	assert.ErrorIs(t, err, runtimeerrors.ErrHandlerNotRegistered)
}
