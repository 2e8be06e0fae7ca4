package arq

import (
	"time"

	"github.com/pkg/errors"
)

// Mode selects the ARQ variant.
type Mode string

// ARQ variants.
const (
	// StopAndWait keeps a single frame in flight.
	StopAndWait = Mode("stop-and-wait")

	// GoBackN sends a window of frames, acknowledges cumulatively and on
	// timeout rewinds to the oldest unacknowledged frame.
	GoBackN = Mode("go-back-n")

	// SelectiveRepeat acknowledges each frame individually and on timeout
	// resends only the frames that were not acknowledged.
	SelectiveRepeat = Mode("selective-repeat")

	// SlidingWindow acknowledges cumulatively after a receiver-side delay of
	// FrameDelay frames and on timeout resends the unacknowledged frames.
	SlidingWindow = Mode("sliding-window")
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case StopAndWait, GoBackN, SelectiveRepeat, SlidingWindow:
		return true
	default:
		return false
	}
}

func (m Mode) cumulative() bool { return m != SelectiveRepeat }

func (m Mode) rewinds() bool { return m == StopAndWait || m == GoBackN }

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid arq config")

// Config holds the parameters shared by both peers of a run.
type Config struct {
	Mode Mode `json:"mode"`

	// Window is the maximum number of unacknowledged frames.
	Window int `json:"window"`

	// Sequence numbers run from SeqBase to SeqBase+SeqModulus-1 and wrap.
	SeqModulus int `json:"seq_modulus"`
	SeqBase    int `json:"seq_base"`

	// FrameDelay is the number of accepted frames the sliding-window
	// receiver holds before acknowledging the oldest.
	FrameDelay int `json:"frame_delay"`

	ProbSendErr float64 `json:"prob_send_err"`
	ProbAckErr  float64 `json:"prob_ack_err"`

	TransmitDelay time.Duration `json:"transmit_delay"`
	AckTimeout    time.Duration `json:"ack_timeout"`

	// AckFlushDelay releases one held acknowledgement when no data has been
	// accepted for this long. Zero disables the flush.
	AckFlushDelay time.Duration `json:"ack_flush_delay"`

	// ReackDuplicates makes the cumulative receiver acknowledge again a frame
	// it has already accepted. Out-of-order frames ahead of the expected
	// sequence are always dropped without an acknowledgement.
	ReackDuplicates bool `json:"reack_duplicates"`

	// Seed seeds the loss simulator. Zero seeds from the clock.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns the sliding-window configuration of the lab board.
func DefaultConfig() Config {
	return Config{
		Mode:          SlidingWindow,
		Window:        7,
		SeqModulus:    16,
		SeqBase:       0,
		FrameDelay:    3,
		ProbSendErr:   0.1,
		ProbAckErr:    0,
		TransmitDelay: 100 * time.Millisecond,
		AckTimeout:    time.Second,
		AckFlushDelay: 300 * time.Millisecond,
	}
}

// Validate checks c.
func (c Config) Validate() error {
	if !c.Mode.Valid() {
		return errors.Wrapf(ErrInvalidConfig, "unknown mode %q", c.Mode)
	}
	if c.Window < 1 {
		return errors.Wrapf(ErrInvalidConfig, "window %d must be at least 1", c.Window)
	}
	if c.Mode == StopAndWait && c.Window != 1 {
		return errors.Wrapf(ErrInvalidConfig, "stop-and-wait requires window 1, got %d", c.Window)
	}
	if c.SeqModulus <= c.Window {
		return errors.Wrapf(ErrInvalidConfig, "sequence modulus %d must exceed window %d", c.SeqModulus, c.Window)
	}
	if c.Mode == SelectiveRepeat && c.SeqModulus < 2*c.Window {
		return errors.Wrapf(ErrInvalidConfig, "selective repeat needs a sequence modulus of at least %d", 2*c.Window)
	}
	if c.SeqBase < 0 || c.SeqBase+c.SeqModulus > 256 {
		return errors.Wrapf(ErrInvalidConfig, "sequence range [%d,%d) does not fit a byte", c.SeqBase, c.SeqBase+c.SeqModulus)
	}
	if c.Mode == SlidingWindow && (c.FrameDelay < 1 || c.FrameDelay > c.Window) {
		return errors.Wrapf(ErrInvalidConfig, "frame delay %d must be within [1,%d]", c.FrameDelay, c.Window)
	}
	if c.ProbSendErr < 0 || c.ProbSendErr > 1 || c.ProbAckErr < 0 || c.ProbAckErr > 1 {
		return errors.Wrap(ErrInvalidConfig, "probabilities must be within [0,1]")
	}
	if c.ProbAckErr > 0 && c.Mode.cumulative() && !c.ReackDuplicates {
		return errors.Wrapf(ErrInvalidConfig, "%s with acknowledgement loss requires reack_duplicates", c.Mode)
	}
	if c.TransmitDelay < 0 || c.AckTimeout <= 0 || c.AckFlushDelay < 0 {
		return errors.Wrap(ErrInvalidConfig, "invalid timer threshold")
	}
	return nil
}

// delayDepth is the number of frames the receiver holds before acknowledging.
func (c Config) delayDepth() int {
	if c.Mode == SlidingWindow {
		return c.FrameDelay
	}
	return 1
}

// seq returns the sequence number carried by unit i of a run.
func (c Config) seq(i int) uint8 {
	return uint8(c.SeqBase + i%c.SeqModulus)
}

// next returns the sequence number following s.
func (c Config) next(s uint8) uint8 {
	return c.seq(int(s) - c.SeqBase + 1)
}

// distance returns how many steps forward b is from a, modulo SeqModulus.
func (c Config) distance(a, b uint8) int {
	d := (int(b) - int(a)) % c.SeqModulus
	if d < 0 {
		d += c.SeqModulus
	}
	return d
}
