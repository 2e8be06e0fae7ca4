// Package blockcode implements systematic (n,k) linear block codes over GF(2)
// with syndrome decoding of single-bit errors, together with the packetizer that
// slices 7-bit text into k-bit symbols.
package blockcode

import (
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("blockcode")

// ErrUncorrectable is returned when a nonzero syndrome does not implicate any
// single bit position. The codeword is corrupted beyond repair.
var ErrUncorrectable = errors.New("uncorrectable codeword")

// Params holds the data describing a code. G is the k×n generator matrix and
// H is the n×(n-k) parity-check matrix with rows indexed by codeword position,
// so that the syndrome of c is c·H.
type Params struct {
	K int      `json:"k"`
	N int      `json:"n"`
	G []string `json:"generator"`
	H []string `json:"parity_check"`
}

// Hamming63 is the (6,3) code used by the lab boards.
var Hamming63 = Params{
	K: 3,
	N: 6,
	G: []string{
		"100110",
		"010111",
		"001101",
	},
	H: []string{
		"110",
		"111",
		"101",
		"100",
		"010",
		"001",
	},
}

// Code is a validated linear block code.
type Code struct {
	k, n      int
	g, h, r   Matrix
	syndromes map[Word]int
}

// NewCode validates p and derives the selection matrix and the syndrome table.
func NewCode(p Params) (*Code, error) {
	if p.K < 1 || p.N <= p.K || p.N > MaxWidth {
		return nil, errors.Errorf("invalid code dimensions (%d,%d)", p.N, p.K)
	}
	g, err := ParseMatrix(p.G...)
	if err != nil {
		return nil, errors.Wrap(err, "generator")
	}
	h, err := ParseMatrix(p.H...)
	if err != nil {
		return nil, errors.Wrap(err, "parity check")
	}
	if g.Rows() != p.K || g.Cols() != p.N {
		return nil, errors.Errorf("generator must be %dx%d, got %dx%d", p.K, p.N, g.Rows(), g.Cols())
	}
	if h.Rows() != p.N || h.Cols() != p.N-p.K {
		return nil, errors.Errorf("parity check must be %dx%d, got %dx%d", p.N, p.N-p.K, h.Rows(), h.Cols())
	}
	for i := 0; i < p.K; i++ {
		for j := 0; j < p.K; j++ {
			want := uint8(0)
			if i == j {
				want = 1
			}
			if g.At(i, j) != want {
				return nil, errors.New("generator is not systematic: first k columns must form the identity")
			}
		}
	}
	gh, err := g.Mul(h)
	if err != nil {
		return nil, err
	}
	if !gh.IsZero() {
		return nil, errors.Errorf("generator and parity check are not orthogonal: G·H =\n%s", gh)
	}

	c := &Code{
		k:         p.K,
		n:         p.N,
		g:         g,
		h:         h,
		r:         selection(p.N, p.K),
		syndromes: make(map[Word]int, p.N),
	}
	for pos := 0; pos < p.N; pos++ {
		s := h.Row(pos)
		if s == 0 {
			return nil, errors.Errorf("bit position %d has a zero syndrome and cannot be detected", pos)
		}
		if prev, ok := c.syndromes[s]; ok {
			log.Warnf("positions %d and %d share syndrome %s; keeping %d", prev, pos, s.Format(p.N-p.K), prev)
			continue
		}
		c.syndromes[s] = pos
	}
	return c, nil
}

// MustNewCode is NewCode that panics on invalid parameters.
func MustNewCode(p Params) *Code {
	c, err := NewCode(p)
	if err != nil {
		panic(err)
	}
	return c
}

// selection returns the n×k matrix that keeps the k systematic bits.
func selection(n, k int) Matrix {
	r := zeros(n, k)
	for i := 0; i < k; i++ {
		r.bits[i][i] = 1
	}
	return r
}

// K returns the number of information bits.
func (c *Code) K() int { return c.k }

// N returns the number of codeword bits.
func (c *Code) N() int { return c.n }

// Syndromes returns a copy of the syndrome to bit-position table.
func (c *Code) Syndromes() map[Word]int {
	out := make(map[Word]int, len(c.syndromes))
	for s, pos := range c.syndromes {
		out[s] = pos
	}
	return out
}

// Encode returns symbol·G.
func (c *Code) Encode(symbol Word) Word {
	return c.g.MulVec(symbol & mask(c.k))
}

// Decode returns codeword·R, the k information bits. It does not correct errors.
func (c *Code) Decode(codeword Word) Word {
	return c.r.MulVec(codeword & mask(c.n))
}

// Syndrome returns codeword·H.
func (c *Code) Syndrome(codeword Word) Word {
	return c.h.MulVec(codeword & mask(c.n))
}

// Outcome classifies the result of syndrome decoding.
type Outcome int

// Outcomes of Inspect.
const (
	Clean Outcome = iota
	Corrected
	Uncorrectable
)

func (o Outcome) String() string {
	switch o {
	case Clean:
		return "clean"
	case Corrected:
		return "corrected"
	case Uncorrectable:
		return "uncorrectable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Inspection describes one syndrome decoding step.
type Inspection struct {
	Codeword Word
	Syndrome Word
	Position int // flipped position, -1 when nothing was flipped
	Outcome  Outcome
}

// Inspect computes the syndrome of codeword and, for a correctable error,
// the corrected codeword. Uncorrectable codewords come back zeroed.
func (c *Code) Inspect(codeword Word) Inspection {
	codeword &= mask(c.n)
	s := c.Syndrome(codeword)
	if s == 0 {
		return Inspection{Codeword: codeword, Position: -1, Outcome: Clean}
	}
	pos, ok := c.syndromes[s]
	if !ok {
		return Inspection{Syndrome: s, Position: -1, Outcome: Uncorrectable}
	}
	return Inspection{Codeword: codeword.Flip(pos, c.n), Syndrome: s, Position: pos, Outcome: Corrected}
}

// DetectAndCorrect returns codeword with at most one bit corrected.
// ErrUncorrectable is returned when the syndrome is not in the table.
func (c *Code) DetectAndCorrect(codeword Word) (Word, error) {
	in := c.Inspect(codeword)
	if in.Outcome == Uncorrectable {
		return 0, errors.Wrapf(ErrUncorrectable, "syndrome %s", in.Syndrome.Format(c.n-c.k))
	}
	return in.Codeword, nil
}
