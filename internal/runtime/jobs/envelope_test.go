package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/ids"
)

func TestOptions(t *testing.T) {
	assert.Equal(t, Options{Stream: "default", Retry: 3, Dead: true}, DefaultOptions())

	o := DefaultOptions().Apply(WithStream("mailers"), WithRetry(-2), WithDead(false), nil)
	assert.Equal(t, Options{Stream: "mailers", Retry: 0, Dead: false}, o)
}

func TestEnvelopeWireFormat(t *testing.T) {
	env, err := NewEnvelope("MyJob", []any{1, "two", nil}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, ids.ValidJID(env.JID))

	data, err := env.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"jid":"`+env.JID+`","class":"MyJob","args":[1,"two",null],"retry":3,"dead":true}`,
		string(data))

	assert.Equal(t, "default.my_job", env.Subject())
	assert.Equal(t, "jobs.dead.my_job", env.DeadSubject())
	assert.Equal(t, uint64(4), env.MaxAttempts())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("Billing::Charge", []any{map[string]any{"amount": 10}, nil}, Options{Stream: "billing", Retry: 1})
	require.NoError(t, err)
	data, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.JID, decoded.JID)
	assert.Equal(t, env.Class, decoded.Class)
	assert.Equal(t, env.Retry, decoded.Retry)
	assert.Equal(t, env.Dead, decoded.Dead)
	require.Len(t, decoded.Args, 2)
	assert.JSONEq(t, `{"amount":10}`, string(decoded.Args[0]))
	assert.Equal(t, "null", string(decoded.Args[1]))
	assert.Empty(t, decoded.Stream)
}

func TestEnvelopeWithoutArgs(t *testing.T) {
	env, err := NewEnvelope("Ping", nil, DefaultOptions())
	require.NoError(t, err)
	data, err := env.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"args":[]`)
}

func TestNewEnvelopeValidation(t *testing.T) {
	_, err := NewEnvelope("", nil, DefaultOptions())
	assert.ErrorIs(t, err, runtimeerrors.ErrClassRequired)

	_, err = NewEnvelope("MyJob", nil, Options{})
	assert.ErrorIs(t, err, runtimeerrors.ErrStreamRequired)

	_, err = NewEnvelope("MyJob", []any{make(chan int)}, DefaultOptions())
	assert.Error(t, err)
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	for _, payload := range []string{"", "not json", "[]", `{"jid":"x"}`} {
		_, err := DecodeEnvelope([]byte(payload))
		assert.ErrorIs(t, err, runtimeerrors.ErrMalformedPayload, payload)
	}
}

func TestArgsDecode(t *testing.T) {
	args := Args{[]byte(`42`), []byte(`{"name":"x"}`)}
	var n int
	require.NoError(t, args.Decode(0, &n))
	assert.Equal(t, 42, n)

	var v struct{ Name string }
	require.NoError(t, args.Decode(1, &v))
	assert.Equal(t, "x", v.Name)

	assert.Error(t, args.Decode(2, &n))
	assert.Nil(t, args.Raw(5))
	assert.Equal(t, 2, args.Len())
}
