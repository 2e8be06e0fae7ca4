// Package frame defines the data, acknowledgement and control frames exchanged
// by ARQ peers, and their byte layout.
package frame

import (
	"fmt"

	"github.com/pkg/errors"
)

// Type is the one-byte tag that prefixes every frame in tagged mode.
type Type byte

// Frame types. ControlType and EndType double as the first byte of the
// untagged control signals used by the lab peers.
const (
	ControlType = Type(0x02)
	EndType     = Type(0x03)
	DataType    = Type(0x10)
	AckType     = Type(0x11)
)

func (t Type) String() string {
	switch t {
	case ControlType:
		return "CONTROL"
	case EndType:
		return "END"
	case DataType:
		return "DATA"
	case AckType:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN:%d", t)
	}
}

const (
	// MarkerACK is the ASCII ACK code carried by positive acknowledgements.
	MarkerACK = byte(0x06)

	// AckSize is the size of a packed acknowledgement frame.
	AckSize = 2
)

var (
	// ErrShortFrame is returned when a buffer is too small for the frame it should hold.
	ErrShortFrame = errors.New("frame too short")

	// ErrLongFrame is returned when a buffer has trailing bytes after a fixed-size frame.
	ErrLongFrame = errors.New("frame too long")

	// ErrPayloadSize is returned when a data payload does not match the layout.
	ErrPayloadSize = errors.New("payload size does not match layout")

	// ErrUnknownType is returned for an unrecognised tag byte.
	ErrUnknownType = errors.New("unknown frame type")
)

// Frame is one decoded frame: a DataFrame, an AckFrame or a Control.
type Frame interface {
	Type() Type
}

// DataFrame carries one message unit.
type DataFrame struct {
	Seq     uint8
	Payload []byte
}

// Type implements Frame.
func (DataFrame) Type() Type { return DataType }

func (f DataFrame) String() string {
	return fmt.Sprintf("<data><seq:%d><size:%d>", f.Seq, len(f.Payload))
}

// AckFrame acknowledges a data frame.
type AckFrame struct {
	Seq    uint8
	Marker byte
}

// Type implements Frame.
func (AckFrame) Type() Type { return AckType }

// IsPositive reports whether the frame carries the ACK marker.
func (f AckFrame) IsPositive() bool { return f.Marker == MarkerACK }

func (f AckFrame) String() string {
	return fmt.Sprintf("<ack><seq:%d><marker:%#x>", f.Seq, f.Marker)
}

// NewAck returns a positive acknowledgement of seq.
func NewAck(seq uint8) AckFrame {
	return AckFrame{Seq: seq, Marker: MarkerACK}
}

// Control is an experiment control signal.
type Control byte

// Control signals. Reset and Transfer travel as [0x02, code]; EndOfMessage is
// the single byte 0x03.
const (
	Reset        = Control('G')
	Transfer     = Control('T')
	EndOfMessage = Control(0x03)
)

// Type implements Frame.
func (c Control) Type() Type {
	if c == EndOfMessage {
		return EndType
	}
	return ControlType
}

func (c Control) String() string {
	switch c {
	case Reset:
		return "RESET"
	case Transfer:
		return "TRANSFER"
	case EndOfMessage:
		return "END_OF_MESSAGE"
	default:
		return fmt.Sprintf("CONTROL:%#x", byte(c))
	}
}

// Bytes returns the untagged wire form of c.
func (c Control) Bytes() []byte {
	if c == EndOfMessage {
		return []byte{byte(EndType)}
	}
	return []byte{byte(ControlType), byte(c)}
}

func isControlCode(b byte) bool {
	return Control(b) == Reset || Control(b) == Transfer
}

// ParseData parses an untagged data frame with a payload of dataLen bytes.
// The payload is copied out of b.
func ParseData(b []byte, dataLen int) (DataFrame, error) {
	switch {
	case len(b) < 1+dataLen:
		return DataFrame{}, errors.Wrapf(ErrShortFrame, "data frame: %d bytes, need %d", len(b), 1+dataLen)
	case len(b) > 1+dataLen:
		return DataFrame{}, errors.Wrapf(ErrLongFrame, "data frame: %d bytes, need %d", len(b), 1+dataLen)
	}
	payload := make([]byte, dataLen)
	copy(payload, b[1:])
	return DataFrame{Seq: b[0], Payload: payload}, nil
}

// ParseAck parses an untagged acknowledgement frame.
func ParseAck(b []byte) (AckFrame, error) {
	switch {
	case len(b) < AckSize:
		return AckFrame{}, errors.Wrapf(ErrShortFrame, "ack frame: %d bytes", len(b))
	case len(b) > AckSize:
		return AckFrame{}, errors.Wrapf(ErrLongFrame, "ack frame: %d bytes", len(b))
	}
	return AckFrame{Seq: b[0], Marker: b[1]}, nil
}
