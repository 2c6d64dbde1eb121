package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/SluiooktueSvg/ia/internal/config"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"req_params":{"text":"hola"}}`)
	frame := encodeFrame(msgTypeFullClient, payload)

	msgType, flags, decoded, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame returned %v", err)
	}
	if msgType != msgTypeFullClient {
		t.Fatalf("expected message type %b, got %b", msgTypeFullClient, msgType)
	}
	if flags != 0 {
		t.Fatalf("expected no flags, got %b", flags)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("payload mismatch: %q", decoded)
	}
}

func TestDecodeFrameAudioChunkWithLastPacketFlag(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03}
	frame := []byte{
		protocolHeaderByte,
		msgTypeAudioChunk<<4 | flagLastPacket,
		serializationJSON<<4 | noCompression,
		0x00,
	}
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(audio)))
	frame = append(frame, audio...)

	msgType, flags, payload, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame returned %v", err)
	}
	if msgType != msgTypeAudioChunk || flags != flagLastPacket {
		t.Fatalf("unexpected type/flags: %b/%b", msgType, flags)
	}
	if !bytes.Equal(payload, audio) {
		t.Fatalf("payload mismatch: %v", payload)
	}
}

func TestDecodeFrameErrorSkipsErrorCode(t *testing.T) {
	message := []byte("bad request")
	frame := []byte{
		protocolHeaderByte,
		msgTypeError << 4,
		serializationJSON<<4 | noCompression,
		0x00,
	}
	frame = binary.BigEndian.AppendUint32(frame, 45000000) // error code
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(message)))
	frame = append(frame, message...)

	msgType, _, payload, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decodeFrame returned %v", err)
	}
	if msgType != msgTypeError {
		t.Fatalf("expected error frame, got %b", msgType)
	}
	if !bytes.Equal(payload, message) {
		t.Fatalf("payload mismatch: %q", payload)
	}
}

func TestDecodeFrameTruncated(t *testing.T) {
	cases := [][]byte{
		{},
		{protocolHeaderByte, msgTypeFullServer << 4},
		{protocolHeaderByte, msgTypeFullServer << 4, 0x10, 0x00},
		{protocolHeaderByte, msgTypeFullServer << 4, 0x10, 0x00, 0x00, 0x00, 0x00, 0xff},
	}
	for i, frame := range cases {
		if _, _, _, err := decodeFrame(frame); err == nil {
			t.Fatalf("case %d: expected an error for truncated frame", i)
		}
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	svc := NewService(config.SpeechConfig{Enabled: true})

	if _, err := svc.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected an error for empty text")
	}
}

func TestSynthesizeRequiresCredentials(t *testing.T) {
	svc := NewService(config.SpeechConfig{})

	if _, err := svc.Synthesize(context.Background(), "hola"); err == nil {
		t.Fatal("expected an error when speech is not configured")
	}
}
