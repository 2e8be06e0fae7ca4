package blockcode

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSymbol(t *testing.T) {
	// "AB" as 7-bit stream: 1000001 1000010
	msg := []byte("AB")
	want := []Word{0x4, 0x0, 0x6, 0x0, 0x4}

	require.Equal(t, len(want), SymbolCount(len(msg), 3))
	for i, w := range want {
		assert.Equal(t, w, ExtractSymbol(msg, i, 3), "symbol %d", i)
	}

	// The top bit of each character is not part of the stream.
	assert.Equal(t, Packetize(msg, 3), Packetize([]byte{0xC1, 0xC2}, 3))

	// Past the end of the message everything reads as zero.
	assert.Equal(t, Word(0), ExtractSymbol(msg, 10, 3))
}

func TestExtractSymbol_Widths(t *testing.T) {
	msg := []byte("EE is my avocation")
	for width := 1; width <= CharBits; width++ {
		symbols := Packetize(msg, width)
		require.Len(t, symbols, SymbolCount(len(msg), width))
		for i, s := range symbols {
			// Compare with a plain per-bit reading of the stream.
			var ref Word
			for b := 0; b < width; b++ {
				pos := i*width + b
				var bit byte
				if c := pos / CharBits; c < len(msg) {
					bit = (msg[c] >> uint(CharBits-1-pos%CharBits)) & 1
				}
				ref = ref<<1 | Word(bit)
			}
			assert.Equal(t, ref, s, "width %d symbol %d", width, i)
		}
		assert.Equal(t, msg, Reassemble(symbols, width, len(msg)), "width %d", width)
	}

	assert.Panics(t, func() { ExtractSymbol(msg, 0, 0) })
	assert.Panics(t, func() { ExtractSymbol(msg, 0, CharBits+1) })
}

func TestFloorMod(t *testing.T) {
	assert.Equal(t, 6, floorMod(-1, 7))
	assert.Equal(t, 0, floorMod(-7, 7))
	assert.Equal(t, 3, floorMod(10, 7))
}

func TestCode_MessageRoundTrip(t *testing.T) {
	c := MustNewCode(Hamming63)
	msg := []byte("EE is my avocation")

	codewords, err := c.EncodeMessage(msg)
	require.NoError(t, err)
	require.Len(t, codewords, SymbolCount(len(msg), c.K()))

	report, err := c.DecodeMessage(codewords, len(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, report.Message)
	assert.Equal(t, 0, report.Corrected)
	assert.Equal(t, 0, report.Uncorrectable)
	assert.Empty(t, report.Lost())
}

func TestCode_MessageCorrection(t *testing.T) {
	c := MustNewCode(Hamming63)
	msg := []byte("EE is my avocation")
	codewords, err := c.EncodeMessage(msg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := range codewords {
		codewords[i] = byte(Word(codewords[i]).Flip(rng.Intn(c.N()), c.N()))
	}

	report, err := c.DecodeMessage(codewords, len(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, report.Message)
	assert.Equal(t, len(codewords), report.Corrected)
}

func TestCode_MessageUncorrectable(t *testing.T) {
	c := MustNewCode(Hamming63)
	msg := []byte("AB")
	codewords, err := c.EncodeMessage(msg)
	require.NoError(t, err)

	// Flipping positions 1 and 3 yields syndrome 011.
	codewords[0] = byte(Word(codewords[0]).Flip(1, c.N()).Flip(3, c.N()))

	report, err := c.DecodeMessage(codewords, len(msg))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uncorrectable)
	assert.Equal(t, []int{0}, report.Lost())
	assert.Equal(t, Word(0), report.Symbols[0].Symbol)
	// Only the first three bits of 'A' are lost.
	assert.Equal(t, byte('A')&0x0f, report.Message[0])
	assert.Equal(t, byte('B'), report.Message[1])
}
