// Package loss simulates a lossy channel with independent Bernoulli trials.
package loss

import (
	"math/rand"
	"time"

	"github.com/skycoin/datalink/pkg/blockcode"
)

// Simulator decides which frames are dropped and which bits get flipped.
// It is not safe for concurrent use.
type Simulator struct {
	rng *rand.Rand
}

// New creates a Simulator with a fixed seed, for reproducible runs.
func New(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// NewRandom creates a Simulator seeded from the clock.
func NewRandom() *Simulator {
	return New(time.Now().UnixNano())
}

// ShouldDrop draws a uniform value in [0,1) and reports whether it falls
// below probability.
func (s *Simulator) ShouldDrop(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return s.rng.Float64() < probability
}

// FlipBits flips each of the width bits of w independently with probability
// ber and returns the noisy word with the flipped positions.
func (s *Simulator) FlipBits(w blockcode.Word, width int, ber float64) (blockcode.Word, []int) {
	var flipped []int
	for i := 0; i < width; i++ {
		if s.ShouldDrop(ber) {
			w = w.Flip(i, width)
			flipped = append(flipped, i)
		}
	}
	return w, flipped
}
