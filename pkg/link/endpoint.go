// Package link runs ARQ sessions over stream connections.
package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/datalink/internal/metrics"
	"github.com/skycoin/datalink/pkg/frame"
)

const (
	// DefaultPollInterval is the read deadline of one loop iteration.
	DefaultPollInterval = 10 * time.Millisecond

	readBufferSize = 4096
)

// ErrPeerDisconnected is returned by Endpoint.Serve when the connection ends.
var ErrPeerDisconnected = errors.New("peer disconnected")

// Handler consumes the frames and clock ticks of one connection.
// *arq.Session implements it.
type Handler interface {
	HandleFrame(f frame.Frame)
	Advance(elapsed time.Duration)
	Disconnect()
}

// Config configures endpoints.
type Config struct {
	Layout       frame.Layout
	PollInterval time.Duration
}

func (c Config) poll() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

// Endpoint is one side of a connection. It encodes outbound frames and runs
// the read loop that feeds a Handler.
type Endpoint struct {
	log    *logging.Logger
	conn   net.Conn
	conf   Config
	dec    *frame.Decoder
	m      metrics.Recorder
	wMx    sync.Mutex
	closed sync.Once
}

// NewEndpoint wraps conn.
func NewEndpoint(conn net.Conn, conf Config, m metrics.Recorder) *Endpoint {
	if m == nil {
		m = metrics.NewDummy()
	}
	return &Endpoint{
		log:  logging.MustGetLogger(fmt.Sprintf("link:%s", conn.RemoteAddr())),
		conn: conn,
		conf: conf,
		dec:  frame.NewDecoder(conf.Layout),
		m:    m,
	}
}

// RemoteAddr returns the address of the remote peer.
func (e *Endpoint) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

// Send encodes f and writes it in a single call, so each frame leaves in its
// own write.
func (e *Endpoint) Send(f frame.Frame) error {
	b, err := e.conf.Layout.Append(nil, f)
	if err != nil {
		return err
	}
	e.wMx.Lock()
	defer e.wMx.Unlock()
	_, err = e.conn.Write(b)
	return err
}

// Serve runs the polling loop until ctx is done or the connection ends. Each
// iteration waits at most PollInterval for data, dispatches every decoded
// frame, then advances the handler's timers by the time elapsed since the
// previous iteration. Undecodable reads are logged and dropped.
func (e *Endpoint) Serve(ctx context.Context, h Handler) error {
	defer h.Disconnect()

	buf := make([]byte, readBufferSize)
	last := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.conn.SetReadDeadline(time.Now().Add(e.conf.poll())); err != nil {
			return errors.Wrapf(ErrPeerDisconnected, "set deadline: %v", err)
		}

		n, err := e.conn.Read(buf)
		if n > 0 {
			frames, decErr := e.dec.Feed(buf[:n])
			if decErr != nil {
				e.m.Record(metrics.DecodeFailed)
				e.log.WithError(decErr).Warnf("dropping undecodable read of %d bytes", n)
			}
			for _, f := range frames {
				h.HandleFrame(f)
			}
		}

		now := time.Now()
		h.Advance(now.Sub(last))
		last = now

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if err == io.EOF {
				return ErrPeerDisconnected
			}
			return errors.Wrapf(ErrPeerDisconnected, "read: %v", err)
		}
	}
}

// Close closes the underlying connection.
func (e *Endpoint) Close() error {
	var err error
	e.closed.Do(func() { err = e.conn.Close() })
	return err
}

// Dial connects to a listening node.
func Dial(ctx context.Context, addr string, conf Config, m metrics.Recorder) (*Endpoint, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewEndpoint(conn, conf, m), nil
}
