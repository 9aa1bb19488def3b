// Package jsoncodec is the JSON codec used for job payloads and the default stream serializer.
package jsoncodec

import (
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value. Job arguments travel as RawMessage so
// they survive decoding untouched until the handler asks for a concrete type.
type RawMessage = json.RawMessage

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// MarshalAll encodes every value into its own RawMessage, preserving order.
func MarshalAll(values []any) ([]RawMessage, error) {
	out := make([]RawMessage, len(values))
	for i, v := range values {
		data, err := Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}
