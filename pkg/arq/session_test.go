package arq

import (
	"bytes"
	"log"
	"os"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/datalink/pkg/frame"
)

func TestMain(m *testing.M) {
	loggingLevel, ok := os.LookupEnv("TEST_LOGGING_LEVEL")
	if ok {
		lvl, err := logging.LevelFromString(loggingLevel)
		if err != nil {
			log.Fatal(err)
		}
		logging.SetLevel(lvl)
	} else {
		logging.Disable()
	}

	os.Exit(m.Run())
}

// wire collects outbound frames until the test delivers them.
type wire struct {
	frames []frame.Frame
}

func (w *wire) Send(f frame.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *wire) drain() []frame.Frame {
	fs := w.frames
	w.frames = nil
	return fs
}

func (w *wire) data() []frame.DataFrame {
	var out []frame.DataFrame
	for _, f := range w.drain() {
		if df, ok := f.(frame.DataFrame); ok {
			out = append(out, df)
		}
	}
	return out
}

func stopAndWait() Config {
	return Config{
		Mode:          StopAndWait,
		Window:        1,
		SeqModulus:    16,
		TransmitDelay: 100 * time.Millisecond,
		AckTimeout:    time.Second,
		Seed:          1,
	}
}

func newSession(t *testing.T, conf Config, msg Message) (*Session, *wire) {
	out := new(wire)
	s, err := NewSession(conf, msg, out, nil)
	require.NoError(t, err)
	return s, out
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, stopAndWait().Validate())

	cases := []struct {
		name string
		edit func(c *Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "carrier-pigeon" }},
		{"zero window", func(c *Config) { c.Window = 0 }},
		{"modulus not above window", func(c *Config) { c.SeqModulus = c.Window }},
		{"stop-and-wait window", func(c *Config) { c.Mode = StopAndWait }},
		{"selective modulus", func(c *Config) { c.Mode = SelectiveRepeat; c.SeqModulus = 10 }},
		{"sequence overflow", func(c *Config) { c.SeqBase = 250 }},
		{"frame delay above window", func(c *Config) { c.FrameDelay = c.Window + 1 }},
		{"probability", func(c *Config) { c.ProbSendErr = 1.5 }},
		{"ack timeout", func(c *Config) { c.AckTimeout = 0 }},
		{"ack loss without reack", func(c *Config) { c.ProbAckErr = 0.3 }},
		{"stop-and-wait ack loss without reack", func(c *Config) {
			c.Mode, c.Window, c.SeqModulus, c.ProbAckErr = StopAndWait, 1, 2, 0.3
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.edit(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_Sequence(t *testing.T) {
	c := Config{SeqModulus: 7, SeqBase: 1}
	assert.Equal(t, uint8(1), c.seq(0))
	assert.Equal(t, uint8(7), c.seq(6))
	assert.Equal(t, uint8(1), c.seq(7))
	assert.Equal(t, uint8(1), c.next(7))
	assert.Equal(t, 2, c.distance(6, 1))
	assert.Equal(t, 5, c.distance(1, 6))
}

func TestMessage(t *testing.T) {
	m := Alphabet(26, 16)
	require.Equal(t, 26, m.Len())
	assert.Equal(t, bytes.Repeat([]byte("A"), 16), m.Unit(0))
	assert.Equal(t, bytes.Repeat([]byte("Z"), 16), m.Unit(25))

	m, err := FromText([]byte("hello world"), 4)
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())
	assert.Equal(t, []byte("rld\x00"), m.Unit(2))
	assert.Len(t, m.Digest(), 64)

	_, err = FromText(nil, 4)
	assert.Equal(t, ErrEmptyMessage, err)
	_, err = NewMessage(2, []byte("ab"), []byte("c"))
	assert.Error(t, err)
}

// 26 letters, stop-and-wait: every acknowledged frame lets the next one out.
func TestSession_StopAndWait(t *testing.T) {
	msg := Alphabet(26, 16)
	s, out := newSession(t, stopAndWait(), msg)

	var done []RunSummary
	s.OnComplete(func(sum RunSummary) { done = append(done, sum) })

	s.Reset()
	frames := out.drain()
	require.Len(t, frames, 2)
	assert.Equal(t, frame.Transfer, frames[0])
	assert.Equal(t, frame.DataFrame{Seq: 0, Payload: msg.Unit(0)}, frames[1])

	for i := 0; i < msg.Len(); i++ {
		seq := uint8(i % 16)
		if i > 0 {
			// Nothing goes out before the transmit delay.
			s.Advance(50 * time.Millisecond)
			assert.Empty(t, out.data())
			s.Advance(51 * time.Millisecond)
			sent := out.data()
			require.Len(t, sent, 1, "unit %d", i)
			assert.Equal(t, frame.DataFrame{Seq: seq, Payload: msg.Unit(i)}, sent[0])
		}
		assert.Equal(t, Transmitting, s.Status().State)
		assert.Len(t, s.Status().InFlight, 1)
		s.HandleAck(frame.NewAck(seq))
	}

	status := s.Status()
	assert.Equal(t, Idle, status.State)
	assert.Equal(t, 26, status.Sent)
	assert.Empty(t, status.InFlight)

	require.Len(t, done, 1)
	assert.Equal(t, 26, done[0].Units)
	assert.Equal(t, 26, done[0].Stats.FramesSent)
	assert.Equal(t, 0, done[0].Stats.Retransmitted)
	assert.Equal(t, msg.Digest(), done[0].Digest)
}

// A lost acknowledgement makes the same frame go out again after the ack
// timeout, without growing the window.
func TestSession_TimeoutRetransmission(t *testing.T) {
	msg := Alphabet(26, 16)
	s, out := newSession(t, stopAndWait(), msg)

	s.Reset()
	first := out.data()
	require.Len(t, first, 1)

	s.Advance(500 * time.Millisecond)
	s.Advance(500 * time.Millisecond)
	assert.Empty(t, out.data(), "timer must exceed the threshold")
	assert.Len(t, s.Status().InFlight, 1)

	s.Advance(time.Millisecond)
	again := out.data()
	require.Len(t, again, 1)
	assert.Equal(t, first[0], again[0])
	assert.Len(t, s.Status().InFlight, 1)

	st := s.Status().Stats
	assert.Equal(t, 1, st.Timeouts)
	assert.Equal(t, 1, st.Retransmitted)

	s.HandleAck(frame.NewAck(0))
	assert.Empty(t, s.Status().InFlight)
	assert.Equal(t, 1, s.Status().Sent)
}

func goBackN() Config {
	return Config{
		Mode:          GoBackN,
		Window:        3,
		SeqModulus:    7,
		TransmitDelay: 10 * time.Millisecond,
		AckTimeout:    100 * time.Millisecond,
		Seed:          1,
	}
}

func TestSession_FillsWindowOnReset(t *testing.T) {
	msg := Alphabet(10, 4)
	s, out := newSession(t, goBackN(), msg)
	s.Reset()

	sent := out.data()
	require.Len(t, sent, 3)
	for i, f := range sent {
		assert.Equal(t, uint8(i), f.Seq)
	}
	assert.Equal(t, []uint8{0, 1, 2}, s.Status().InFlight)

	// A short message fills only what it has and announces its end.
	short, out := newSession(t, goBackN(), Alphabet(2, 4))
	short.Reset()
	frames := out.drain()
	require.Len(t, frames, 4)
	assert.Equal(t, frame.EndOfMessage, frames[3])
}

func TestSession_CumulativeAck(t *testing.T) {
	s, _ := newSession(t, goBackN(), Alphabet(10, 4))
	s.Reset()

	s.HandleAck(frame.AckFrame{Seq: 1, Marker: 0x15})
	assert.Equal(t, []uint8{0, 1, 2}, s.Status().InFlight, "non-ACK markers are ignored")

	s.HandleAck(frame.NewAck(5))
	assert.Equal(t, []uint8{0, 1, 2}, s.Status().InFlight, "unknown sequences are ignored")

	s.HandleAck(frame.NewAck(1))
	assert.Equal(t, []uint8{2}, s.Status().InFlight)
	assert.Equal(t, 2, s.Status().Stats.AcksIgnored)
}

func TestSession_GoBackNTimeout(t *testing.T) {
	msg := Alphabet(10, 4)
	s, out := newSession(t, goBackN(), msg)
	s.Reset()
	out.drain()

	s.HandleAck(frame.NewAck(0))
	s.Advance(101 * time.Millisecond) // transmit timer wins
	require.Len(t, out.data(), 1)
	assert.Equal(t, []uint8{1, 2, 3}, s.Status().InFlight)

	s.Advance(101 * time.Millisecond)
	resent := out.data()
	require.Len(t, resent, 1)
	assert.Equal(t, frame.DataFrame{Seq: 1, Payload: msg.Unit(1)}, resent[0])
	assert.Equal(t, []uint8{1}, s.Status().InFlight)
	assert.Equal(t, 2, s.Status().Sent)
}

func TestSession_SelectiveRepeat(t *testing.T) {
	conf := goBackN()
	conf.Mode = SelectiveRepeat
	conf.SeqModulus = 8
	msg := Alphabet(10, 4)

	s, out := newSession(t, conf, msg)
	s.Reset()
	out.drain()

	s.HandleAck(frame.NewAck(1), frame.NewAck(2))
	assert.Equal(t, []uint8{0, 1, 2}, s.Status().InFlight, "window waits for seq 0")

	// Only the unacknowledged frame goes out again.
	s.Advance(101 * time.Millisecond)
	s.Advance(0)
	resent := out.data()
	require.Len(t, resent, 1)
	assert.Equal(t, uint8(0), resent[0].Seq)

	s.HandleAck(frame.NewAck(0))
	assert.Empty(t, s.Status().InFlight)
	assert.Equal(t, 3, s.Status().Sent, "progress is kept")
}

func TestSession_Receiver(t *testing.T) {
	conf := DefaultConfig()
	conf.Seed = 1
	r, out := newSession(t, conf, Message{})

	unit := func(seq uint8) frame.DataFrame {
		return frame.DataFrame{Seq: seq, Payload: bytes.Repeat([]byte{'a' + seq}, 2)}
	}

	// Acks are held until FrameDelay frames are pending.
	r.HandleData(unit(0), unit(1))
	assert.Empty(t, out.drain())
	r.HandleData(unit(2))
	assert.Equal(t, []frame.Frame{frame.NewAck(0)}, out.drain())
	assert.Equal(t, []uint8{1, 2}, r.Status().PendingAcks)

	// Out-of-order frames are dropped without an ack.
	r.HandleData(unit(5))
	assert.Empty(t, out.drain())
	assert.Equal(t, 1, r.Status().Stats.Discarded)

	// The flush delay releases held acks one at a time.
	r.Advance(conf.AckFlushDelay + time.Millisecond)
	assert.Equal(t, []frame.Frame{frame.NewAck(1)}, out.drain())

	// End of message flushes everything and acks the rest immediately.
	r.HandleControl(frame.EndOfMessage)
	assert.Equal(t, []frame.Frame{frame.NewAck(2)}, out.drain())
	r.HandleData(unit(3))
	assert.Equal(t, []frame.Frame{frame.NewAck(3)}, out.drain())

	assert.Equal(t, []byte("aabbccdd"), r.Delivered())

	// A new transfer starts over.
	r.HandleControl(frame.Transfer)
	assert.Empty(t, r.Delivered())
	assert.Equal(t, uint8(0), r.Status().Expected)
}

func TestSession_ReackDuplicates(t *testing.T) {
	conf := stopAndWait()
	r, out := newSession(t, conf, Message{})
	d := frame.DataFrame{Seq: 0, Payload: []byte("x")}

	r.HandleData(d)
	assert.Equal(t, []frame.Frame{frame.NewAck(0)}, out.drain())
	r.HandleData(d)
	assert.Empty(t, out.drain(), "duplicates are dropped by default")

	conf.ReackDuplicates = true
	r, out = newSession(t, conf, Message{})
	r.HandleData(d, d)
	assert.Equal(t, []frame.Frame{frame.NewAck(0), frame.NewAck(0)}, out.drain())
	assert.Equal(t, []byte("x"), r.Delivered())
}

func TestSession_SelectiveReceiver(t *testing.T) {
	conf := goBackN()
	conf.Mode = SelectiveRepeat
	conf.SeqModulus = 8
	r, out := newSession(t, conf, Message{})

	r.HandleData(
		frame.DataFrame{Seq: 1, Payload: []byte("b")},
		frame.DataFrame{Seq: 2, Payload: []byte("c")},
	)
	assert.Equal(t, []frame.Frame{frame.NewAck(1), frame.NewAck(2)}, out.drain())
	assert.Empty(t, r.Delivered())

	r.HandleData(frame.DataFrame{Seq: 0, Payload: []byte("a")})
	assert.Equal(t, []byte("abc"), r.Delivered())
	assert.Equal(t, uint8(3), r.Status().Expected)

	// Already delivered: acknowledged again.
	r.HandleData(frame.DataFrame{Seq: 1, Payload: []byte("b")})
	assert.Equal(t, []frame.Frame{frame.NewAck(0), frame.NewAck(1)}, out.drain())
	assert.Equal(t, []byte("abc"), r.Delivered())
}

func TestSession_ResetAndDisconnect(t *testing.T) {
	s, out := newSession(t, goBackN(), Alphabet(10, 4))
	s.Reset()
	s.HandleAck(frame.NewAck(0))
	out.drain()

	// Reset mid-flight starts again from the first unit.
	s.HandleControl(frame.Reset)
	sent := out.data()
	require.Len(t, sent, 3)
	assert.Equal(t, uint8(0), sent[0].Seq)
	assert.Equal(t, 3, s.Status().Sent)

	s.Disconnect()
	st := s.Status()
	assert.Equal(t, Idle, st.State)
	assert.Empty(t, st.InFlight)
	assert.Equal(t, 0, st.Sent)

	// A receive-only peer ignores reset.
	r, out := newSession(t, goBackN(), Message{})
	r.Reset()
	assert.Empty(t, out.drain())
	assert.Equal(t, Idle, r.Status().State)
}

// Two sessions exchange frames over lossy channels on a virtual clock until
// the sender finishes.
func TestSession_Liveness(t *testing.T) {
	cases := []struct {
		name string
		conf Config
	}{
		{"stop-and-wait", Config{Mode: StopAndWait, Window: 1, SeqModulus: 2, ProbSendErr: 0.3}},
		{"stop-and-wait ack loss", Config{Mode: StopAndWait, Window: 1, SeqModulus: 2, ProbSendErr: 0.3, ProbAckErr: 0.3, ReackDuplicates: true}},
		{"go-back-n", Config{Mode: GoBackN, Window: 3, SeqModulus: 7, ProbSendErr: 0.3}},
		{"go-back-n ack loss", Config{Mode: GoBackN, Window: 3, SeqModulus: 7, ProbSendErr: 0.2, ProbAckErr: 0.3, ReackDuplicates: true}},
		{"selective-repeat", Config{Mode: SelectiveRepeat, Window: 4, SeqModulus: 8, ProbSendErr: 0.3, ProbAckErr: 0.2}},
		{"sliding-window", Config{Mode: SlidingWindow, Window: 7, SeqModulus: 16, FrameDelay: 3, ProbSendErr: 0.3}},
		{"sliding-window ack loss", Config{Mode: SlidingWindow, Window: 7, SeqModulus: 16, FrameDelay: 3, ProbSendErr: 0.2, ProbAckErr: 0.2, ReackDuplicates: true}},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conf := tc.conf
			conf.TransmitDelay = 20 * time.Millisecond
			conf.AckTimeout = 200 * time.Millisecond
			conf.AckFlushDelay = 50 * time.Millisecond
			conf.Seed = int64(100 + i)

			msg := Alphabet(26, 16)
			toPeer, toNode := new(wire), new(wire)
			node, err := NewSession(conf, msg, toPeer, nil)
			require.NoError(t, err)
			conf.Seed++
			peer, err := NewSession(conf, Message{}, toNode, nil)
			require.NoError(t, err)

			var done *RunSummary
			node.OnComplete(func(sum RunSummary) { done = &sum })

			require.NoError(t, peer.Begin())
			for n := 0; n < 100000 && done == nil; n++ {
				for _, f := range toNode.drain() {
					node.HandleFrame(f)
				}
				for _, f := range toPeer.drain() {
					peer.HandleFrame(f)
				}
				node.Advance(10 * time.Millisecond)
				peer.Advance(10 * time.Millisecond)
			}

			require.NotNil(t, done, "run did not finish")
			assert.Equal(t, Idle, node.Status().State)
			assert.Equal(t, 26, node.Status().Sent)
			assert.Equal(t, msg.Bytes(), peer.Delivered())
			assert.Equal(t, done.Digest, peer.DeliveredDigest())
			assert.True(t, done.Stats.FramesSent >= 26)
		})
	}
}
