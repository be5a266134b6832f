package codec

import (
	"encoding/json"
	"fmt"
)

// JSONCodec produces the textual wire envelope understood by every NetCall peer:
//
//	{"obj": "<target_id>", "method": "<method_name>", "args": [<value>, ...]}
//	{"error": "<message or empty>", "result": <value or null>}
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
