package blockcode

import "fmt"

// CharBits is the number of significant bits of each source character.
// The top bit of 7-bit text is always zero and is not transmitted.
const CharBits = 7

// SymbolCount returns the number of width-bit symbols needed to carry msgLen
// characters.
func SymbolCount(msgLen, width int) int {
	return (msgLen*CharBits + width - 1) / width
}

// floorMod returns a mod b rounded toward negative infinity, so the result is
// always in [0, b) for b > 0.
func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ExtractSymbol returns symbol index of msg seen as a stream of 7-bit
// characters, most significant bit first. Bits past the end of msg read as
// zero. width must be between 1 and CharBits, so a symbol touches at most two
// characters.
func ExtractSymbol(msg []byte, index, width int) Word {
	if width < 1 || width > CharBits {
		panic(fmt.Sprintf("symbol width %d out of range [1,%d]", width, CharBits))
	}
	start := index * width
	c := start / CharBits
	off := start % CharBits

	// rem is the right shift that aligns the symbol inside character c. It goes
	// negative when the symbol continues into character c+1.
	rem := CharBits - off - width
	if rem >= 0 {
		return Word(char(msg, c)>>uint(rem)) & mask(width)
	}
	spill := -rem
	hi := Word(char(msg, c)) & mask(CharBits-off)
	lo := Word(char(msg, c+1) >> uint(floorMod(rem, CharBits)))
	return (hi<<uint(spill) | lo) & mask(width)
}

func char(msg []byte, i int) byte {
	if i < 0 || i >= len(msg) {
		return 0
	}
	return msg[i] & 0x7f
}

// Packetize splits msg into width-bit symbols.
func Packetize(msg []byte, width int) []Word {
	out := make([]Word, SymbolCount(len(msg), width))
	for i := range out {
		out[i] = ExtractSymbol(msg, i, width)
	}
	return out
}

// Reassemble is the inverse of Packetize: it rebuilds msgLen 7-bit characters
// from width-bit symbols. Missing trailing symbols read as zero.
func Reassemble(symbols []Word, width, msgLen int) []byte {
	msg := make([]byte, msgLen)
	total := msgLen * CharBits
	for i, s := range symbols {
		for b := 0; b < width; b++ {
			pos := i*width + b
			if pos >= total {
				return msg
			}
			if s.Bit(b, width) == 1 {
				msg[pos/CharBits] |= 1 << uint(CharBits-1-pos%CharBits)
			}
		}
	}
	return msg
}
