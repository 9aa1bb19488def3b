package streams

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/jetflow/internal/runtime/jsoncodec"
)

// HeaderContentType is set on every published stream message.
const HeaderContentType = "Content-Type"

// Serializer converts stream payloads to and from bytes.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

// JSONSerializer is the default serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return jsoncodec.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return jsoncodec.Unmarshal(data, v) }

func (JSONSerializer) ContentType() string { return "application/json" }

// ProtoSerializer uses the protobuf binary encoding. Values must be proto.Message.
type ProtoSerializer struct{}

func (ProtoSerializer) Marshal(v any) ([]byte, error) {
	m, err := asProto(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(m)
}

func (ProtoSerializer) Unmarshal(data []byte, v any) error {
	m, err := asProto(v)
	if err != nil {
		return err
	}
	return proto.Unmarshal(data, m)
}

func (ProtoSerializer) ContentType() string { return "application/protobuf" }

// ProtoJSONSerializer uses the canonical protobuf JSON mapping.
type ProtoJSONSerializer struct {
	MarshalOptions   protojson.MarshalOptions
	UnmarshalOptions protojson.UnmarshalOptions
}

func (s ProtoJSONSerializer) Marshal(v any) ([]byte, error) {
	m, err := asProto(v)
	if err != nil {
		return nil, err
	}
	return s.MarshalOptions.Marshal(m)
}

func (s ProtoJSONSerializer) Unmarshal(data []byte, v any) error {
	m, err := asProto(v)
	if err != nil {
		return err
	}
	return s.UnmarshalOptions.Unmarshal(data, m)
}

func (ProtoJSONSerializer) ContentType() string { return "application/protojson" }

func asProto(v any) (proto.Message, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("streams: %T does not implement proto.Message", v)
	}
	return m, nil
}

func serializerOrDefault(s Serializer) Serializer {
	if s == nil {
		return JSONSerializer{}
	}
	return s
}
