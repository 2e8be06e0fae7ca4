package arq

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/cipher"
)

// ErrEmptyMessage is returned when a message has no units.
var ErrEmptyMessage = errors.New("message has no units")

// Message is the ordered list of fixed-size units a sender transmits.
type Message struct {
	units [][]byte
	size  int
}

// NewMessage builds a message from units that must all be unitSize long.
func NewMessage(unitSize int, units ...[]byte) (Message, error) {
	if len(units) == 0 {
		return Message{}, ErrEmptyMessage
	}
	m := Message{units: make([][]byte, len(units)), size: unitSize}
	for i, u := range units {
		if len(u) != unitSize {
			return Message{}, errors.Errorf("unit %d is %d bytes, want %d", i, len(u), unitSize)
		}
		m.units[i] = append([]byte(nil), u...)
	}
	return m, nil
}

// Alphabet returns n units where unit i repeats the letter 'A'+i dataLen
// times, wrapping after 'Z'.
func Alphabet(n, dataLen int) Message {
	m := Message{units: make([][]byte, n), size: dataLen}
	for i := range m.units {
		m.units[i] = bytes.Repeat([]byte{byte('A' + i%26)}, dataLen)
	}
	return m
}

// FromText splits text into dataLen-byte units, zero padding the last.
func FromText(text []byte, dataLen int) (Message, error) {
	if len(text) == 0 {
		return Message{}, ErrEmptyMessage
	}
	n := (len(text) + dataLen - 1) / dataLen
	m := Message{units: make([][]byte, n), size: dataLen}
	for i := range m.units {
		u := make([]byte, dataLen)
		copy(u, text[i*dataLen:])
		m.units[i] = u
	}
	return m, nil
}

// Len returns the number of units.
func (m Message) Len() int { return len(m.units) }

// UnitSize returns the size of every unit.
func (m Message) UnitSize() int { return m.size }

// Unit returns unit i. The slice must not be modified.
func (m Message) Unit(i int) []byte { return m.units[i] }

// Bytes returns all units concatenated.
func (m Message) Bytes() []byte {
	return bytes.Join(m.units, nil)
}

// Digest returns the hex SHA256 of all units concatenated.
func (m Message) Digest() string {
	return cipher.SumSHA256(m.Bytes()).Hex()
}
