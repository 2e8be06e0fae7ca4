package frame

import (
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("frame")

// Mode selects how frames are delimited on the byte stream.
type Mode string

const (
	// Tagged prefixes every frame with its Type byte. Frames are
	// reassembled across reads.
	Tagged = Mode("tagged")

	// Legacy sends bare frames and classifies each read by its length.
	// A read must hold whole frames of a single kind.
	Legacy = Mode("legacy")
)

var (
	// ErrAmbiguous is returned in legacy mode when a buffer length is a
	// multiple of both the data and the ack frame size.
	ErrAmbiguous = errors.New("buffer length matches both data and ack frames")

	// ErrUnknownLength is returned in legacy mode when a buffer length is not
	// a multiple of any frame size.
	ErrUnknownLength = errors.New("buffer length matches no frame size")

	// ErrInvalidLayout is returned by Layout.Validate.
	ErrInvalidLayout = errors.New("invalid frame layout")
)

// Layout describes the frame sizes agreed by both peers.
type Layout struct {
	DataLen int  `json:"data_len"`
	Mode    Mode `json:"mode"`
}

// DataSize is the size of an untagged data frame.
func (l Layout) DataSize() int { return 1 + l.DataLen }

// Validate checks the layout. In legacy mode it warns when the data frame
// size is a multiple of AckSize, since such reads can be ambiguous.
func (l Layout) Validate() error {
	if l.DataLen < 1 || l.DataLen > 255 {
		return errors.Wrapf(ErrInvalidLayout, "data length %d out of range", l.DataLen)
	}
	switch l.Mode {
	case Tagged:
	case Legacy:
		if l.DataSize()%AckSize == 0 {
			log.Warnf("data frame size %d is a multiple of the ack size %d: batched reads may be ambiguous",
				l.DataSize(), AckSize)
		}
	default:
		return errors.Wrapf(ErrInvalidLayout, "unknown mode %q", l.Mode)
	}
	return nil
}

func (l Layout) tagged() bool { return l.Mode != Legacy }

// AppendData appends the wire form of f to b.
func (l Layout) AppendData(b []byte, f DataFrame) ([]byte, error) {
	if len(f.Payload) != l.DataLen {
		return b, errors.Wrapf(ErrPayloadSize, "got %d bytes, want %d", len(f.Payload), l.DataLen)
	}
	if l.tagged() {
		b = append(b, byte(DataType))
	}
	b = append(b, f.Seq)
	return append(b, f.Payload...), nil
}

// AppendAck appends the wire form of f to b.
func (l Layout) AppendAck(b []byte, f AckFrame) []byte {
	if l.tagged() {
		b = append(b, byte(AckType))
	}
	return append(b, f.Seq, f.Marker)
}

// AppendControl appends the wire form of c to b. Control signals carry their
// own leading byte and are not tagged again.
func (l Layout) AppendControl(b []byte, c Control) []byte {
	return append(b, c.Bytes()...)
}

// Append appends the wire form of any frame to b.
func (l Layout) Append(b []byte, f Frame) ([]byte, error) {
	switch f := f.(type) {
	case DataFrame:
		return l.AppendData(b, f)
	case AckFrame:
		return l.AppendAck(b, f), nil
	case Control:
		return l.AppendControl(b, f), nil
	default:
		return b, errors.Wrapf(ErrUnknownType, "%T", f)
	}
}

// Classify returns the frame type held by a legacy read. Control signals are
// recognised by their exact bytes; everything else by length.
func (l Layout) Classify(buf []byte) (Type, error) {
	if len(buf) == 0 {
		return 0, ErrShortFrame
	}
	if len(buf) == 1 && buf[0] == byte(EndType) {
		return EndType, nil
	}
	if len(buf) == 2 && buf[0] == byte(ControlType) && isControlCode(buf[1]) {
		return ControlType, nil
	}
	isData := len(buf)%l.DataSize() == 0
	isAck := len(buf)%AckSize == 0
	switch {
	case isData && isAck:
		return 0, errors.Wrapf(ErrAmbiguous, "length %d", len(buf))
	case isData:
		return DataType, nil
	case isAck:
		return AckType, nil
	default:
		return 0, errors.Wrapf(ErrUnknownLength, "length %d", len(buf))
	}
}

// ParseLegacy splits a legacy read into frames.
func (l Layout) ParseLegacy(buf []byte) ([]Frame, error) {
	t, err := l.Classify(buf)
	if err != nil {
		return nil, err
	}
	switch t {
	case EndType:
		return []Frame{EndOfMessage}, nil
	case ControlType:
		return []Frame{Control(buf[1])}, nil
	case DataType:
		frames := make([]Frame, 0, len(buf)/l.DataSize())
		for off := 0; off < len(buf); off += l.DataSize() {
			f, err := ParseData(buf[off:off+l.DataSize()], l.DataLen)
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		return frames, nil
	default:
		frames := make([]Frame, 0, len(buf)/AckSize)
		for off := 0; off < len(buf); off += AckSize {
			f, err := ParseAck(buf[off : off+AckSize])
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		return frames, nil
	}
}

// Decoder turns reads from the byte stream into frames.
type Decoder struct {
	layout Layout
	buf    []byte
}

// NewDecoder creates a Decoder for the given layout.
func NewDecoder(l Layout) *Decoder {
	return &Decoder{layout: l}
}

// Buffered returns the number of bytes held back waiting for the rest of a frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Feed consumes one read and returns every frame it completes. In tagged
// mode a partial trailing frame is kept for the next call. An unknown tag
// discards everything buffered, since the stream can no longer be delimited.
func (d *Decoder) Feed(p []byte) ([]Frame, error) {
	if !d.layout.tagged() {
		return d.layout.ParseLegacy(p)
	}

	d.buf = append(d.buf, p...)
	var frames []Frame
	for len(d.buf) > 0 {
		var (
			size int
			f    Frame
		)
		switch Type(d.buf[0]) {
		case EndType:
			size, f = 1, EndOfMessage
		case ControlType:
			size = 2
			if len(d.buf) >= size {
				f = Control(d.buf[1])
			}
		case DataType:
			size = 1 + d.layout.DataSize()
			if len(d.buf) >= size {
				df, err := ParseData(d.buf[1:size], d.layout.DataLen)
				if err != nil {
					return frames, err
				}
				f = df
			}
		case AckType:
			size = 1 + AckSize
			if len(d.buf) >= size {
				af, err := ParseAck(d.buf[1:size])
				if err != nil {
					return frames, err
				}
				f = af
			}
		default:
			tag := d.buf[0]
			d.buf = d.buf[:0]
			return frames, errors.Wrapf(ErrUnknownType, "tag %#x", tag)
		}
		if f == nil {
			break
		}
		frames = append(frames, f)
		d.buf = d.buf[size:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames, nil
}
