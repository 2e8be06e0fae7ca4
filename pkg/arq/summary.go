package arq

import (
	"time"

	"github.com/google/uuid"
)

// RunSummary describes a finished run.
type RunSummary struct {
	ID       uuid.UUID `json:"id"`
	Session  uuid.UUID `json:"session"`
	Mode     Mode      `json:"mode"`
	Units    int       `json:"units"`
	UnitSize int       `json:"unit_size"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Stats    Stats     `json:"stats"`
	Digest   string    `json:"digest"`
}

// Duration returns how long the run took.
func (r RunSummary) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Status is a snapshot of a Session.
type Status struct {
	ID       uuid.UUID `json:"id"`
	Mode     Mode      `json:"mode"`
	State    State     `json:"state"`
	Run      uuid.UUID `json:"run,omitempty"`
	NextSeq  uint8     `json:"next_seq"`
	Sent     int       `json:"sent"`
	Total    int       `json:"total"`
	InFlight []uint8   `json:"in_flight"`

	Expected    uint8   `json:"expected"`
	PendingAcks []uint8 `json:"pending_acks"`
	Delivered   int     `json:"delivered_bytes"`
	PeerDone    bool    `json:"peer_done"`

	Stats Stats `json:"stats"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:          s.id,
		Mode:        s.conf.Mode,
		State:       s.state,
		Run:         s.runID,
		NextSeq:     s.conf.seq(s.sent),
		Sent:        s.sent,
		Total:       s.msg.Len(),
		InFlight:    s.unacked.Values(),
		Expected:    s.expected,
		PendingAcks: s.pending.Values(),
		Delivered:   len(s.delivered),
		PeerDone:    s.peerDone,
		Stats:       s.stats,
	}
}
