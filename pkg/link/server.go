package link

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/datalink/internal/metrics"
)

var log = logging.MustGetLogger("link")

// ErrServerClosed is returned by Server.Serve after Close.
var ErrServerClosed = errors.New("link server closed")

// HandlerFactory creates the Handler for a newly accepted endpoint.
// release, when not nil, is called once the endpoint stops serving.
type HandlerFactory func(ep *Endpoint) (h Handler, release func(), err error)

// Server accepts connections and serves each one with its own Handler.
type Server struct {
	lis        net.Listener
	conf       Config
	newHandler HandlerFactory
	m          metrics.Recorder

	mu     sync.Mutex
	eps    map[*Endpoint]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a Server over lis.
func NewServer(lis net.Listener, conf Config, newHandler HandlerFactory, m metrics.Recorder) *Server {
	if m == nil {
		m = metrics.NewDummy()
	}
	return &Server{
		lis:        lis,
		conf:       conf,
		newHandler: newHandler,
		m:          m,
		eps:        make(map[*Endpoint]struct{}),
	}
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Serve accepts connections until the listener fails or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	log.Infof("serving on %s", s.lis.Addr())
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return err
		}

		ep := NewEndpoint(conn, s.conf, s.m)
		if !s.track(ep) {
			_ = ep.Close() //nolint:errcheck
			return ErrServerClosed
		}
		go s.serveEndpoint(ctx, ep)
	}
}

func (s *Server) serveEndpoint(ctx context.Context, ep *Endpoint) {
	defer s.wg.Done()
	defer s.untrack(ep)
	defer func() {
		if err := ep.Close(); err != nil {
			ep.log.WithError(err).Debug("close")
		}
	}()

	h, release, err := s.newHandler(ep)
	if err != nil {
		ep.log.WithError(err).Error("failed to create session")
		return
	}
	if release != nil {
		defer release()
	}

	ep.log.Info("peer connected")
	err = ep.Serve(ctx, h)
	if errors.Is(err, ErrPeerDisconnected) {
		ep.log.Info("peer disconnected")
		return
	}
	ep.log.WithError(err).Info("stopped serving peer")
}

// track registers ep and adds it to the wait group unless the server is closed.
func (s *Server) track(ep *Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.eps[ep] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(ep *Endpoint) {
	s.mu.Lock()
	delete(s.eps, ep)
	s.mu.Unlock()
}

// Close stops accepting, closes every connection and waits for their loops
// to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.lis.Close()
	for ep := range s.eps {
		if cErr := ep.Close(); cErr != nil {
			log.WithError(cErr).Warn("failed to close endpoint")
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
