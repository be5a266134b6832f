package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte(`{"obj":"foo","method":"Print","args":["Hello!"]}`)
	header := Header{MsgType: MsgTypeData, BodyLen: uint32(len(body))}

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("expect %d bytes on the wire, got %d", HeaderSize+len(body), buf.Len())
	}

	decodedHeader, decodedBody, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, header.MsgType)
	}
	if decodedHeader.BodyLen != header.BodyLen {
		t.Errorf("BodyLen mismatch: got %d, want %d", decodedHeader.BodyLen, header.BodyLen)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", decodedBody, body)
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'G', 'E', 'T', Version, byte(MsgTypeData), 0, 0, 0, 0})

	_, _, err := Decode(&buf, 0)
	if err == nil || !strings.Contains(err.Error(), "invalid magic number") {
		t.Fatalf("expect invalid magic number error, got %v", err)
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{MagicNumber, MagicByte2, MagicByte3, 0xFF, byte(MsgTypeData), 0, 0, 0, 0})

	_, _, err := Decode(&buf, 0)
	if err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Fatalf("expect unsupported version error, got %v", err)
	}
}

func TestDecodeInvalidMsgType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{MagicNumber, MagicByte2, MagicByte3, Version, 9, 0, 0, 0, 0})

	_, _, err := Decode(&buf, 0)
	if err == nil || !strings.Contains(err.Error(), "unsupported message type") {
		t.Fatalf("expect unsupported message type error, got %v", err)
	}
}

func TestHeartbeatEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeHeartbeat}, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	header, body, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if header.MsgType != MsgTypeHeartbeat || len(body) != 0 {
		t.Fatalf("expect empty heartbeat, got %+v with %d bytes", header, len(body))
	}
}

func TestDecodeBodyLimit(t *testing.T) {
	body := make([]byte, 1024)
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeData, BodyLen: uint32(len(body))}, body); err != nil {
		t.Fatal(err)
	}

	_, _, err := Decode(&buf, 512)
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("expect body limit error, got %v", err)
	}
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeData, BodyLen: uint32(len(largeBody))}, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, decodedBody, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestEncodeLengthMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeData, BodyLen: 3}, []byte("ab")); err == nil {
		t.Fatal("expect length mismatch error")
	}
}
