package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"netcall/message"
	"netcall/value"
)

// BinaryCodec writes envelopes as length-prefixed fields. Values are still
// carried as JSON text, so the numeric class survives exactly as with JSONCodec.
//
//	Request: idLen(2) id | objLen(2) obj | methodLen(2) method | argsLen(4) args JSON array
//	Result:  idLen(2) id | errLen(2) error | resultLen(4) result JSON
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.Request:
		args := msg.Args
		if args == nil {
			args = []value.Value{}
		}
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		w := &writer{}
		w.str16(msg.ID)
		w.str16(msg.Obj)
		w.str16(msg.Method)
		w.bytes32(payload)
		return w.buf, w.err
	case *message.Result:
		payload, err := json.Marshal(msg.Result)
		if err != nil {
			return nil, err
		}
		w := &writer{}
		w.str16(msg.ID)
		w.str16(msg.Error)
		w.bytes32(payload)
		return w.buf, w.err
	}
	return nil, errors.New("BinaryCodec: v must be *message.Request or *message.Result")
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	r := &reader{data: data}
	switch msg := v.(type) {
	case *message.Request:
		msg.ID = r.str16()
		msg.Obj = r.str16()
		msg.Method = r.str16()
		payload := r.bytes32()
		if err := r.done(); err != nil {
			return err
		}
		if err := json.Unmarshal(payload, &msg.Args); err != nil {
			return fmt.Errorf("%w: args: %v", ErrMalformed, err)
		}
		return nil
	case *message.Result:
		msg.ID = r.str16()
		msg.Error = r.str16()
		payload := r.bytes32()
		if err := r.done(); err != nil {
			return err
		}
		if err := json.Unmarshal(payload, &msg.Result); err != nil {
			return fmt.Errorf("%w: result: %v", ErrMalformed, err)
		}
		return nil
	}
	return errors.New("BinaryCodec: v must be *message.Request or *message.Result")
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) str16(s string) {
	if len(s) > math.MaxUint16 {
		w.err = fmt.Errorf("BinaryCodec: field of %d bytes exceeds 65535", len(s))
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes32(b []byte) {
	if uint64(len(b)) > math.MaxUint32 {
		w.err = fmt.Errorf("BinaryCodec: payload of %d bytes exceeds 4GiB", len(b))
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader remembers the first short read; later reads return zero values.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) str16() string {
	lenBuf := r.take(2)
	if lenBuf == nil {
		return ""
	}
	return string(r.take(int(binary.BigEndian.Uint16(lenBuf))))
}

func (r *reader) bytes32() []byte {
	lenBuf := r.take(4)
	if lenBuf == nil {
		return nil
	}
	return r.take(int(binary.BigEndian.Uint32(lenBuf)))
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.data)-r.off)
	}
	return nil
}
