package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestJSONSerializer(t *testing.T) {
	s := JSONSerializer{}
	data, err := s.Marshal(map[string]any{"key": "value"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"value"}`, string(data))

	var out map[string]string
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, "value", out["key"])
	assert.Equal(t, "application/json", s.ContentType())
}

func TestProtoSerializers(t *testing.T) {
	for name, s := range map[string]Serializer{
		"binary": ProtoSerializer{},
		"json":   ProtoJSONSerializer{},
	} {
		t.Run(name, func(t *testing.T) {
			data, err := s.Marshal(wrapperspb.String("hello"))
			require.NoError(t, err)

			out := &wrapperspb.StringValue{}
			require.NoError(t, s.Unmarshal(data, out))
			assert.Equal(t, "hello", out.GetValue())

			_, err = s.Marshal(map[string]any{})
			assert.ErrorContains(t, err, "does not implement proto.Message")
			assert.Error(t, s.Unmarshal(data, &struct{}{}))
			assert.NotEmpty(t, s.ContentType())
		})
	}
}

func TestSerializerOrDefault(t *testing.T) {
	assert.Equal(t, JSONSerializer{}, serializerOrDefault(nil))
	assert.Equal(t, ProtoSerializer{}, serializerOrDefault(ProtoSerializer{}))
}
