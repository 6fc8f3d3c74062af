// Package frame implements the ground-station relay hub's wire frame: a
// fixed-shape, dual-CRC-protected message that is the hub's sole unit of
// input and output.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/spacehauc/gshub/pkg/vertex"
)

const (
	// GUID is the fixed magic value every frame must start with.
	GUID uint16 = 0x1A1C
	// Termination is the fixed magic value every frame must end with.
	Termination uint16 = 0xAAAA
	// MaxPayload is the largest permitted payload_size.
	MaxPayload = 100
)

// Mode is an advisory direction annotation with no semantic effect on the
// hub. Preserved for wire compatibility.
type Mode uint8

const (
	RX Mode = iota
	TX
)

func (m Mode) Valid() bool { return m == RX || m == TX }

// Type is the closed set of frame payload kinds. The hub itself only
// interprets Poll; every other type is opaque.
type Type uint8

const (
	Null Type = iota
	Ack
	Nack
	ConfigUHF
	ConfigXBand
	Data
	Poll
)

func (t Type) Valid() bool { return t <= Poll }

var typeNames = [...]string{"NULL", "ACK", "NACK", "CONFIG_UHF", "CONFIG_XBAND", "DATA", "POLL"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// FrameSize is the number of bytes every encoded frame occupies on the wire.
const FrameSize = 2 + 1 + 1 + 1 + 1 + 2 + 2 + MaxPayload + 2 + 1 + 2

// Frame is the atomic unit on the wire. It is a plain value type: callers own
// it outright, there is no shared ownership or frame pool.
type Frame struct {
	Origin      vertex.Vertex
	Destination vertex.Vertex
	Mode        Mode
	Type        Type
	PayloadSize uint16
	Payload     [MaxPayload]byte
	Netstat     uint8
}

// Malformed reports why a received frame was rejected as structurally
// invalid. It is the hub's INTEGRITY error.
type Malformed struct {
	Reason string
}

func (e *Malformed) Error() string { return "frame: malformed: " + e.Reason }

// ErrMalformed is returned (wrapped in a *Malformed) for every decode or
// verify failure, so callers can test with errors.Is(err, ErrMalformed).
var ErrMalformed = errors.New("malformed frame")

func (e *Malformed) Unwrap() error { return ErrMalformed }

func malformed(format string, a ...any) error {
	return &Malformed{Reason: fmt.Sprintf(format, a...)}
}

// Verify checks that f satisfies every wire invariant that does not depend on
// the bytes it was decoded from (origin/destination/mode/type/payload_size
// range). It is used both after Decode and before Encode.
func (f *Frame) Verify() error {
	if !f.Origin.Valid() {
		return malformed("invalid origin %d", f.Origin)
	}
	if !f.Destination.Valid() {
		return malformed("invalid destination %d", f.Destination)
	}
	if !f.Mode.Valid() {
		return malformed("invalid mode %d", f.Mode)
	}
	if !f.Type.Valid() {
		return malformed("invalid type %d", f.Type)
	}
	if f.PayloadSize > MaxPayload {
		return malformed("payload_size %d exceeds maximum %d", f.PayloadSize, MaxPayload)
	}
	return nil
}

// Encode serializes f into buf, which must be at least FrameSize bytes, and
// returns the number of bytes written. It recomputes crc1 and crc2 from the
// meaningful payload prefix and sets guid/termination; the caller is
// responsible for Netstat.
func (f *Frame) Encode(buf []byte) (int, error) {
	if len(buf) < FrameSize {
		return 0, fmt.Errorf("frame: encode: buffer too small (%d < %d)", len(buf), FrameSize)
	}
	if err := f.Verify(); err != nil {
		return 0, err
	}

	crc := crc16(f.Payload[:f.PayloadSize])

	b := buf[:FrameSize]
	n := 0
	binary.BigEndian.PutUint16(b[n:], GUID)
	n += 2
	b[n] = byte(f.Origin)
	n++
	b[n] = byte(f.Destination)
	n++
	b[n] = byte(f.Mode)
	n++
	b[n] = byte(f.Type)
	n++
	binary.BigEndian.PutUint16(b[n:], f.PayloadSize)
	n += 2
	binary.BigEndian.PutUint16(b[n:], crc)
	n += 2
	n += copy(b[n:], f.Payload[:])
	binary.BigEndian.PutUint16(b[n:], crc)
	n += 2
	b[n] = f.Netstat
	n++
	binary.BigEndian.PutUint16(b[n:], Termination)
	n += 2

	return n, nil
}

// Decode reads exactly one frame from b, which must be at least FrameSize
// bytes. It fails with a *Malformed error if any structural constant is
// wrong, or if crc1 != crc2 or either disagrees with the payload.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if len(b) < FrameSize {
		return f, malformed("short buffer (%d < %d)", len(b), FrameSize)
	}

	n := 0
	if guid := binary.BigEndian.Uint16(b[n:]); guid != GUID {
		return f, malformed("bad guid 0x%04X", guid)
	}
	n += 2

	f.Origin = vertex.Vertex(b[n])
	n++
	f.Destination = vertex.Vertex(b[n])
	n++
	f.Mode = Mode(b[n])
	n++
	f.Type = Type(b[n])
	n++

	f.PayloadSize = binary.BigEndian.Uint16(b[n:])
	n += 2

	crc1 := binary.BigEndian.Uint16(b[n:])
	n += 2

	copy(f.Payload[:], b[n:n+MaxPayload])
	n += MaxPayload

	crc2 := binary.BigEndian.Uint16(b[n:])
	n += 2

	f.Netstat = b[n]
	n++

	term := binary.BigEndian.Uint16(b[n:])
	n += 2

	if err := f.Verify(); err != nil {
		return Frame{}, err
	}
	if term != Termination {
		return Frame{}, malformed("bad termination 0x%04X", term)
	}
	if crc1 != crc2 {
		return Frame{}, malformed("crc1 0x%04X != crc2 0x%04X", crc1, crc2)
	}
	if want := crc16(f.Payload[:f.PayloadSize]); crc1 != want {
		return Frame{}, malformed("crc 0x%04X does not match payload (want 0x%04X)", crc1, want)
	}

	return f, nil
}
