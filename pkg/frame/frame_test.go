package frame

import (
	"bytes"
	"testing"

	"github.com/spacehauc/gshub/pkg/vertex"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.ROOFUHF
	f.Mode = TX
	f.Type = Data
	f.PayloadSize = 3
	copy(f.Payload[:], []byte{0x01, 0x02, 0x03})
	f.Netstat = 0xC0

	buf := make([]byte, FrameSize)
	n, err := f.Encode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != FrameSize {
		t.Fatalf("wrong encoded length, got %d, expected %d", n, FrameSize)
	}

	got, err := Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.Origin != f.Origin || got.Destination != f.Destination || got.Mode != f.Mode || got.Type != f.Type {
		t.Fatalf("wrong header fields: %+v", got)
	}
	if got.PayloadSize != f.PayloadSize {
		t.Fatalf("wrong payload size, got %d, expected %d", got.PayloadSize, f.PayloadSize)
	}
	if !bytes.Equal(got.Payload[:got.PayloadSize], f.Payload[:f.PayloadSize]) {
		t.Fatalf("wrong payload, got %v, expected %v", got.Payload[:got.PayloadSize], f.Payload[:f.PayloadSize])
	}
	if got.Netstat != f.Netstat {
		t.Fatalf("wrong netstat, got 0x%02X, expected 0x%02X", got.Netstat, f.Netstat)
	}
}

func TestEncodeDecodeEmptyPayload(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.SERVER
	f.Type = Poll

	buf := make([]byte, FrameSize)
	n, err := f.Encode(buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.PayloadSize != 0 {
		t.Fatalf("expected empty payload, got size %d", got.PayloadSize)
	}
}

func TestEncodeMaxPayload(t *testing.T) {
	var f Frame
	f.Origin = vertex.HAYSTACK
	f.Destination = vertex.TRACK
	f.Type = Data
	f.PayloadSize = MaxPayload
	for i := range f.Payload {
		f.Payload[i] = byte(i)
	}

	buf := make([]byte, FrameSize)
	n, err := f.Encode(buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload[:], f.Payload[:]) {
		t.Fatal("payload mismatch at max size")
	}
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.TRACK
	f.Type = Data
	f.PayloadSize = MaxPayload

	buf := make([]byte, FrameSize)
	if _, err := f.Encode(buf); err != nil {
		t.Fatal(err)
	}
	// payload_size field lives right after guid+origin+dest+mode+type
	buf[6] = 0xFF
	buf[7] = 0xFF

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error decoding oversized payload_size")
	}
}

func TestDecodeRejectsBadGUID(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.TRACK
	f.Type = Null

	buf := make([]byte, FrameSize)
	if _, err := f.Encode(buf); err != nil {
		t.Fatal(err)
	}
	buf[0], buf[1] = 0x00, 0x00

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error decoding bad guid")
	}
}

func TestDecodeRejectsBadTermination(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.TRACK
	f.Type = Null

	buf := make([]byte, FrameSize)
	n, err := f.Encode(buf)
	if err != nil {
		t.Fatal(err)
	}
	buf[n-1], buf[n-2] = 0x00, 0x00

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error decoding bad termination")
	}
}

func TestDecodeRejectsCRCMismatch(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.TRACK
	f.Type = Data
	f.PayloadSize = 4
	copy(f.Payload[:], []byte{1, 2, 3, 4})

	buf := make([]byte, FrameSize)
	if _, err := f.Encode(buf); err != nil {
		t.Fatal(err)
	}
	// flip every bit of one crc1 byte, leaving crc2 intact
	buf[8] ^= 0xFF

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error decoding mismatched crc")
	}
}

func TestDecodeRejectsInvalidVertex(t *testing.T) {
	var f Frame
	f.Origin = vertex.CLIENT
	f.Destination = vertex.TRACK
	f.Type = Null

	buf := make([]byte, FrameSize)
	if _, err := f.Encode(buf); err != nil {
		t.Fatal(err)
	}
	buf[3] = 200 // destination byte, out of range

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error decoding invalid destination vertex")
	}
}

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/CCITT-FALSE of ASCII "123456789" is 0x29B1, a widely cited check
	// value for this variant.
	if got := crc16([]byte("123456789")); got != 0x29B1 {
		t.Fatalf("crc16 check value mismatch, got 0x%04X, expected 0x29B1", got)
	}
}
