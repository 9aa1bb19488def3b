package jsoncodec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: 42, Name: "jetflow"}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out testPayload
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(indented), "\n  \"id\""), "expected indented output, got %s", indented)
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := testPayload{ID: 7, Name: "stream"}

	require.NoError(t, Encode(buf, payload))

	var decoded testPayload
	require.NoError(t, Decode(buf, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":[1,null,"x"]}`)))
	assert.False(t, Valid([]byte(`invalid json`)))
	assert.False(t, Valid([]byte(`{"a":`)))
}

func TestMarshalAllKeepsOrderAndNulls(t *testing.T) {
	raw, err := MarshalAll([]any{"arg1", nil, 3, true})
	require.NoError(t, err)
	require.Len(t, raw, 4)

	assert.Equal(t, `"arg1"`, string(raw[0]))
	assert.Equal(t, `null`, string(raw[1]))
	assert.Equal(t, `3`, string(raw[2]))
	assert.Equal(t, `true`, string(raw[3]))
}

func TestMarshalAllPropagatesErrors(t *testing.T) {
	_, err := MarshalAll([]any{make(chan int)})
	assert.Error(t, err)
}
