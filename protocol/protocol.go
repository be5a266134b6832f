// Package protocol implements the frame format used by the tcp transport.
//
// TCP is a byte stream, so every message is delimited by a fixed-size 9-byte
// header followed by a variable-length body. The receiver reads the header
// first to learn the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │mt│ bodyLen │    body ...    │
//	│ ncp  │01│  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴─────────┴───────────────┘
//
// Correlation lives in the envelope (call id), not in the frame.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "ncp" (netcall protocol).
// Rejects non-protocol peers (e.g., an HTTP client hitting the wrong port).
const (
	MagicNumber byte = 0x6e // 'n'
	MagicByte2  byte = 0x63 // 'c'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 9 // 3 (magic) + 1 (version) + 1 (msgType) + 4 (bodyLen)
)

// DefaultMaxBodyLen bounds the allocation made for a single frame body.
const DefaultMaxBodyLen uint32 = 16 << 20

// MsgType distinguishes envelope frames from heartbeats.
type MsgType byte

const (
	MsgTypeData      MsgType = 0 // Body is one encoded envelope
	MsgTypeHeartbeat MsgType = 1 // KeepAlive probe (no body)
)

// Header represents the fixed frame header.
type Header struct {
	MsgType MsgType
	BodyLen uint32
}

// Encode writes a complete frame (header + body) to w in a single Write.
// The caller must serialize concurrent calls on a shared writer.
func Encode(w io.Writer, h *Header, body []byte) error {
	if int(h.BodyLen) != len(body) {
		return fmt.Errorf("body length mismatch: header %d, body %d", h.BodyLen, len(body))
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[5:9], h.BodyLen)

	_, err := w.Write(append(buf, body...))
	return err
}

// Decode reads one complete frame from r, validating magic, version and
// message type. Bodies larger than maxBodyLen are rejected before allocation;
// pass 0 for DefaultMaxBodyLen.
func Decode(r io.Reader, maxBodyLen uint32) (*Header, []byte, error) {
	if maxBodyLen == 0 {
		maxBodyLen = DefaultMaxBodyLen
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	msgType := MsgType(headerBuf[4])
	if msgType != MsgTypeData && msgType != MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[5:9])
	if bodyLen > maxBodyLen {
		return nil, nil, fmt.Errorf("frame body of %d bytes exceeds limit %d", bodyLen, maxBodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{MsgType: msgType, BodyLen: bodyLen}, body, nil
}
