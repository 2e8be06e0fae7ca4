// Package arq implements the automatic repeat request state machine run by
// both peers of a transfer.
package arq

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skycoin/skycoin/src/cipher"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/datalink/internal/metrics"
	"github.com/skycoin/datalink/pkg/frame"
	"github.com/skycoin/datalink/pkg/loss"
	"github.com/skycoin/datalink/pkg/queue"
)

// State is the state of the sending side of a Session.
type State string

// Sender states.
const (
	Idle         = State("idle")
	Transmitting = State("transmitting")
)

// Sender transmits frames to the remote peer.
type Sender interface {
	Send(f frame.Frame) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(f frame.Frame) error

// Send implements Sender.
func (fn SenderFunc) Send(f frame.Frame) error { return fn(f) }

// Stats counts what happened during a run.
type Stats struct {
	FramesSent    int `json:"frames_sent"`
	Retransmitted int `json:"retransmitted"`
	FramesDropped int `json:"frames_dropped"`
	AcksReceived  int `json:"acks_received"`
	AcksIgnored   int `json:"acks_ignored"`
	Timeouts      int `json:"timeouts"`

	Delivered   int `json:"delivered"`
	Discarded   int `json:"discarded"`
	AcksSent    int `json:"acks_sent"`
	AcksDropped int `json:"acks_dropped"`
}

// Session holds the whole protocol state of one connection: the sending
// window driven by Reset, acknowledgements and timers, and the receiving
// side that accepts data frames and acknowledges them.
// All methods are safe for concurrent use.
type Session struct {
	id         uuid.UUID
	log        *logging.Logger
	conf       Config
	msg        Message
	out        Sender
	loss       *loss.Simulator
	m          metrics.Recorder
	onComplete func(RunSummary)

	mu sync.Mutex

	// sending side
	state         State
	runID         uuid.UUID
	started       time.Time
	sent          int // next unit to transmit
	highest       int // units transmitted at least once
	unacked       *queue.Queue
	units         map[uint8]int // in-flight seq to unit index
	acked         map[uint8]bool
	sinceTransmit time.Duration
	sinceAck      time.Duration
	endSent       bool
	stats         Stats

	// receiving side
	expected  uint8
	pending   *queue.Queue
	early     map[uint8][]byte
	delivered []byte
	peerDone  bool
	sinceData time.Duration
}

// NewSession creates an idle Session that sends msg through out. msg may be
// empty for a peer that only receives.
func NewSession(conf Config, msg Message, out Sender, m metrics.Recorder) (*Session, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewDummy()
	}
	unacked, err := queue.New(conf.Window)
	if err != nil {
		return nil, err
	}
	pending, err := queue.New(conf.delayDepth())
	if err != nil {
		return nil, err
	}

	sim := loss.NewRandom()
	if conf.Seed != 0 {
		sim = loss.New(conf.Seed)
	}

	id := uuid.New()
	s := &Session{
		id:       id,
		log:      logging.MustGetLogger(fmt.Sprintf("arq:%s", id.String()[:6])),
		conf:     conf,
		msg:      msg,
		out:      out,
		loss:     sim,
		m:        m,
		state:    Idle,
		unacked:  unacked,
		pending:  pending,
		units:    make(map[uint8]int),
		acked:    make(map[uint8]bool),
		early:    make(map[uint8][]byte),
		expected: conf.seq(0),
	}
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.conf }

// OnComplete registers fn to be called, outside the session lock, every time
// a run finishes.
func (s *Session) OnComplete(fn func(RunSummary)) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// Begin clears the receiving side and asks the remote peer to start a run.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetReceiver()
	return s.out.Send(frame.Reset)
}

// Reset discards every in-flight frame and timer, restarts the sequence
// space and fills the window with the first units of the message.
func (s *Session) Reset() {
	s.mu.Lock()
	s.reset()
	sum := s.checkComplete()
	s.mu.Unlock()
	s.complete(sum)
}

// HandleFrame dispatches one decoded frame.
func (s *Session) HandleFrame(f frame.Frame) {
	switch f := f.(type) {
	case frame.Control:
		s.HandleControl(f)
	case frame.DataFrame:
		s.HandleData(f)
	case frame.AckFrame:
		s.HandleAck(f)
	default:
		s.log.Warnf("unexpected frame %T", f)
	}
}

// HandleControl handles a control signal.
func (s *Session) HandleControl(c frame.Control) {
	switch c {
	case frame.Reset:
		s.log.Info("reset requested by peer")
		s.Reset()
	case frame.Transfer:
		s.mu.Lock()
		s.log.Debug("peer started a transfer")
		s.resetReceiver()
		s.mu.Unlock()
	case frame.EndOfMessage:
		s.mu.Lock()
		s.log.Debug("peer reached the end of its message")
		s.peerDone = true
		for s.pending.Size() > 0 {
			s.ackFront()
		}
		s.mu.Unlock()
	default:
		s.log.Warnf("ignoring unknown control signal %v", c)
	}
}

// HandleData runs the receiving side over a batch of data frames.
func (s *Session) HandleData(frames ...frame.DataFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frames {
		if s.conf.Mode == SelectiveRepeat {
			s.receiveSelective(f)
		} else {
			s.receive(f)
		}
	}
}

// HandleAck runs the sending side over a batch of acknowledgements.
func (s *Session) HandleAck(frames ...frame.AckFrame) {
	s.mu.Lock()
	for _, f := range frames {
		s.handleAck(f)
	}
	sum := s.checkComplete()
	s.mu.Unlock()
	s.complete(sum)
}

// Advance moves both timers forward by elapsed. When the transmit timer
// expires and the window has room the next unit is sent; otherwise an
// expired ack timer triggers retransmission.
func (s *Session) Advance(elapsed time.Duration) {
	s.mu.Lock()
	s.advance(elapsed)
	sum := s.checkComplete()
	s.mu.Unlock()
	s.complete(sum)
}

// Disconnect drops all in-flight state after the peer went away.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Transmitting {
		s.log.Warnf("peer disconnected with %d frames in flight", s.unacked.Size())
	}
	s.clearSender()
	s.state = Idle
	s.resetReceiver()
}

// Delivered returns a copy of the payloads accepted in order since the last
// transfer started.
func (s *Session) Delivered() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.delivered...)
}

// DeliveredDigest returns the hex SHA256 of the delivered payloads.
func (s *Session) DeliveredDigest() string {
	return cipher.SumSHA256(s.Delivered()).Hex()
}

func (s *Session) reset() {
	s.clearSender()
	s.resetReceiver()
	s.stats = Stats{}
	if s.msg.Len() == 0 {
		s.log.Warn("reset ignored: no message to send")
		s.state = Idle
		return
	}
	s.state = Transmitting
	s.runID = uuid.New()
	s.started = time.Now()
	s.send(frame.Transfer)
	for s.sendNext() {
	}
	s.log.Infof("run %s started: %d units, window %d", s.runID, s.msg.Len(), s.conf.Window)
}

func (s *Session) clearSender() {
	s.unacked.Clear()
	s.units = make(map[uint8]int)
	s.acked = make(map[uint8]bool)
	s.sent, s.highest = 0, 0
	s.sinceTransmit, s.sinceAck = 0, 0
	s.endSent = false
}

func (s *Session) resetReceiver() {
	s.expected = s.conf.seq(0)
	s.pending.Clear()
	s.early = make(map[uint8][]byte)
	s.delivered = nil
	s.peerDone = false
	s.sinceData = 0
}

func (s *Session) send(f frame.Frame) {
	if err := s.out.Send(f); err != nil {
		s.log.WithError(err).Warnf("failed to send %v", f)
	}
}

// transmit sends unit i through the loss simulator.
func (s *Session) transmit(i int, resend bool) {
	f := frame.DataFrame{Seq: s.conf.seq(i), Payload: s.msg.Unit(i)}
	s.stats.FramesSent++
	if resend {
		s.stats.Retransmitted++
		s.m.Record(metrics.FrameResent)
	} else {
		s.m.Record(metrics.FrameSent)
	}
	if s.loss.ShouldDrop(s.conf.ProbSendErr) {
		s.stats.FramesDropped++
		s.m.Record(metrics.FrameDropped)
		s.log.Debugf("channel dropped %v", f)
		return
	}
	s.send(f)
}

// sendNext transmits the next unit if the window has room. The unit is
// tracked as in flight whether or not the channel dropped it.
func (s *Session) sendNext() bool {
	if s.sent >= s.msg.Len() || s.unacked.IsFull() {
		return false
	}
	if s.unacked.Size() == 0 {
		s.sinceAck = 0
	}

	i := s.sent
	seq := s.conf.seq(i)
	s.transmit(i, i < s.highest)
	if err := s.unacked.Enqueue(seq); err != nil {
		s.log.WithError(err).Errorf("failed to track seq %d", seq)
	}
	s.units[seq] = i
	delete(s.acked, seq)

	s.sent++
	if s.sent > s.highest {
		s.highest = s.sent
	}
	if s.sent == s.msg.Len() && !s.endSent {
		s.endSent = true
		s.send(frame.EndOfMessage)
	}
	return true
}

func (s *Session) handleAck(f frame.AckFrame) {
	if s.state != Transmitting || !f.IsPositive() {
		s.stats.AcksIgnored++
		return
	}
	s.stats.AcksReceived++
	s.m.Record(metrics.AckReceived)

	if !s.unacked.Contains(f.Seq) || s.acked[f.Seq] {
		s.stats.AcksIgnored++
		s.log.Debugf("ignoring stale %v", f)
		return
	}
	if s.conf.Mode.cumulative() {
		for {
			seq, err := s.unacked.Front()
			if err != nil {
				break
			}
			s.pop(seq)
			if seq == f.Seq {
				break
			}
		}
	} else {
		s.acked[f.Seq] = true
		for {
			seq, err := s.unacked.Front()
			if err != nil || !s.acked[seq] {
				break
			}
			s.pop(seq)
		}
	}
	s.sinceAck = 0
}

func (s *Session) pop(seq uint8) {
	if err := s.unacked.Dequeue(); err != nil {
		s.log.WithError(err).Error("window out of sync")
	}
	delete(s.units, seq)
	delete(s.acked, seq)
}

func (s *Session) advance(elapsed time.Duration) {
	if s.pending.Size() > 0 && s.conf.AckFlushDelay > 0 {
		s.sinceData += elapsed
		if s.sinceData > s.conf.AckFlushDelay {
			s.sinceData = 0
			s.ackFront()
		}
	}

	if s.state != Transmitting {
		return
	}
	s.sinceTransmit += elapsed
	if s.unacked.Size() > 0 {
		s.sinceAck += elapsed
	}

	if s.sinceTransmit > s.conf.TransmitDelay && s.sent < s.msg.Len() && !s.unacked.IsFull() {
		s.sinceTransmit = 0
		s.sendNext()
		return
	}
	if s.unacked.Size() > 0 && s.sinceAck > s.conf.AckTimeout {
		s.timeout()
	}
}

func (s *Session) timeout() {
	s.stats.Timeouts++
	s.m.Record(metrics.AckTimeout)
	s.sinceAck, s.sinceTransmit = 0, 0

	if s.conf.Mode.rewinds() {
		oldest, err := s.unacked.Front()
		if err != nil {
			return
		}
		s.sent = s.units[oldest]
		s.log.Debugf("ack timeout: going back to unit %d (seq %d)", s.sent, oldest)
		s.unacked.Clear()
		s.units = make(map[uint8]int)
		s.acked = make(map[uint8]bool)
		s.sendNext()
		return
	}

	inFlight := s.unacked.Values()
	s.log.Debugf("ack timeout: resending unacknowledged frames of %v", inFlight)
	for _, seq := range inFlight {
		if !s.acked[seq] {
			s.transmit(s.units[seq], true)
		}
	}
}

// receive accepts the next in-order frame and holds it for delayed
// acknowledgement. Frames ahead of the expected sequence are dropped.
func (s *Session) receive(f frame.DataFrame) {
	if f.Seq == s.expected {
		s.deliver(f.Payload)
		if err := s.pending.Enqueue(f.Seq); err != nil {
			s.log.WithError(err).Warnf("ack window full, acknowledging seq %d now", f.Seq)
			s.ack(f.Seq)
		}
		s.sinceData = 0
		if s.pending.Size() >= s.conf.delayDepth() || s.peerDone {
			s.ackFront()
		}
		return
	}

	s.stats.Discarded++
	s.m.Record(metrics.FrameDiscarded)
	if s.conf.ReackDuplicates && s.isDuplicate(f.Seq) && !s.pending.Contains(f.Seq) {
		s.log.Debugf("acknowledging duplicate %v again", f)
		s.ack(f.Seq)
		return
	}
	s.log.Debugf("dropped out-of-order %v, expecting seq %d", f, s.expected)
}

// receiveSelective acknowledges every frame within the receive window,
// buffering early ones until the gap before them is filled.
func (s *Session) receiveSelective(f frame.DataFrame) {
	ahead := s.conf.distance(s.expected, f.Seq)
	switch {
	case ahead < s.conf.Window:
		s.ack(f.Seq)
		if ahead > 0 {
			if _, ok := s.early[f.Seq]; !ok {
				s.early[f.Seq] = f.Payload
			}
			return
		}
		s.deliver(f.Payload)
		for {
			p, ok := s.early[s.expected]
			if !ok {
				break
			}
			delete(s.early, s.expected)
			s.deliver(p)
		}
	case s.isDuplicate(f.Seq):
		s.stats.Discarded++
		s.m.Record(metrics.FrameDiscarded)
		s.ack(f.Seq)
	default:
		s.stats.Discarded++
		s.m.Record(metrics.FrameDiscarded)
		s.log.Debugf("dropped %v outside the receive window", f)
	}
}

// isDuplicate reports whether seq belongs to the window just delivered.
func (s *Session) isDuplicate(seq uint8) bool {
	behind := s.conf.distance(seq, s.expected)
	return behind >= 1 && behind <= s.conf.Window
}

func (s *Session) deliver(payload []byte) {
	s.delivered = append(s.delivered, payload...)
	s.expected = s.conf.next(s.expected)
	s.stats.Delivered++
	s.m.Record(metrics.FrameDelivered)
}

func (s *Session) ackFront() {
	seq, err := s.pending.Front()
	if err != nil {
		return
	}
	if err := s.pending.Dequeue(); err != nil {
		return
	}
	s.ack(seq)
}

func (s *Session) ack(seq uint8) {
	if s.loss.ShouldDrop(s.conf.ProbAckErr) {
		s.stats.AcksDropped++
		s.m.Record(metrics.AckDropped)
		s.log.Debugf("channel dropped ack %d", seq)
		return
	}
	s.stats.AcksSent++
	s.m.Record(metrics.AckSent)
	s.send(frame.NewAck(seq))
}

// checkComplete ends the run once every unit was sent and acknowledged.
func (s *Session) checkComplete() *RunSummary {
	if s.state != Transmitting || s.sent < s.msg.Len() || s.unacked.Size() > 0 {
		return nil
	}
	s.state = Idle
	sum := &RunSummary{
		ID:       s.runID,
		Session:  s.id,
		Mode:     s.conf.Mode,
		Units:    s.msg.Len(),
		UnitSize: s.msg.UnitSize(),
		Started:  s.started,
		Finished: time.Now(),
		Stats:    s.stats,
		Digest:   s.msg.Digest(),
	}
	s.m.Record(metrics.RunCompleted)
	s.log.Infof("run %s completed in %s: %d frames sent, %d retransmitted, %d timeouts",
		sum.ID, sum.Finished.Sub(sum.Started), sum.Stats.FramesSent, sum.Stats.Retransmitted, sum.Stats.Timeouts)
	return sum
}

func (s *Session) complete(sum *RunSummary) {
	if sum == nil {
		return
	}
	s.mu.Lock()
	fn := s.onComplete
	s.mu.Unlock()
	if fn != nil {
		fn(*sum)
	}
}
