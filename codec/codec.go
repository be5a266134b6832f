// Package codec serializes request and result envelopes to and from the
// message text carried by a transport.
package codec

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("codec: malformed envelope")

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

// Codec encodes *message.Request and *message.Result values.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeBinary {
		return &BinaryCodec{}
	}

	return &JSONCodec{}
}

// ByName resolves a configured codec name ("json" or "binary").
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return &JSONCodec{}, nil
	case "binary":
		return &BinaryCodec{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
