// Package node runs the sending side of the lab experiment as a TCP service:
// every connected peer gets its own ARQ session, finished runs are stored,
// and an HTTP API reports on both.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/datalink/internal/metrics"
	"github.com/skycoin/datalink/pkg/arq"
	"github.com/skycoin/datalink/pkg/link"
	"github.com/skycoin/datalink/pkg/store"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo describes a connected peer and its session.
type SessionInfo struct {
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
	arq.Status
}

type sessionEntry struct {
	s         *arq.Session
	remote    string
	connected time.Time
}

// Node serves ARQ sessions to peers.
type Node struct {
	conf   *Config
	log    *logging.Logger
	msg    arq.Message
	runs   store.RunStore
	m      metrics.Recorder
	reg    *prometheus.Registry
	api    http.Handler
	lis    net.Listener
	apiLis net.Listener
	srv    *link.Server
	apiSrv *http.Server

	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry

	closeOnce sync.Once
}

// New opens the listeners and the run store described by conf.
func New(conf *Config) (*Node, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	msg, err := conf.BuildMessage()
	if err != nil {
		return nil, err
	}

	n := &Node{
		conf:     conf,
		log:      logging.MustGetLogger("node"),
		msg:      msg,
		reg:      prometheus.NewRegistry(),
		sessions: make(map[uuid.UUID]*sessionEntry),
	}
	if n.m, err = metrics.NewPrometheus("datalink", n.reg); err != nil {
		return nil, fmt.Errorf("metrics: %s", err)
	}
	if n.runs, err = conf.RunStore(); err != nil {
		return nil, fmt.Errorf("run store: %s", err)
	}

	if n.lis, err = net.Listen("tcp", conf.Link.Addr); err != nil {
		n.closeStore()
		return nil, fmt.Errorf("failed to listen on %s: %s", conf.Link.Addr, err)
	}
	n.srv = link.NewServer(n.lis, conf.LinkConfig(), n.newSession, n.m)

	n.api = newAPI(n)
	if conf.Interfaces.APIAddress != "" {
		if n.apiLis, err = net.Listen("tcp", conf.Interfaces.APIAddress); err != nil {
			n.closeStore()
			_ = n.lis.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to setup API listener: %s", err)
		}
		n.apiSrv = &http.Server{Handler: n.api}
	}
	return n, nil
}

// Addr returns the address peers connect to.
func (n *Node) Addr() net.Addr { return n.lis.Addr() }

// APIAddr returns the address of the HTTP API, or nil when it is disabled.
func (n *Node) APIAddr() net.Addr {
	if n.apiLis == nil {
		return nil
	}
	return n.apiLis.Addr()
}

// ServeHTTP implements http.Handler.
func (n *Node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.api.ServeHTTP(w, r)
}

// Start serves peers and the API until ctx is done or Close is called.
func (n *Node) Start(ctx context.Context) error {
	if n.apiSrv != nil {
		n.log.Info("Starting API on ", n.apiLis.Addr())
		go func() {
			if err := n.apiSrv.Serve(n.apiLis); err != nil && err != http.ErrServerClosed {
				n.log.WithError(err).Error("API stopped")
			}
		}()
	}

	n.log.Infof("Sending %d units of %d bytes in %s mode", n.msg.Len(), n.msg.UnitSize(), n.conf.ARQ.Mode)
	err := n.srv.Serve(ctx)
	if err == link.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops the listeners, disconnects every peer and closes the store.
func (n *Node) Close() (err error) {
	n.closeOnce.Do(func() {
		if n.apiSrv != nil {
			n.log.Info("Stopping API")
			if apiErr := n.apiSrv.Close(); apiErr != nil {
				err = apiErr
			}
		}
		n.log.Info("Stopping link server")
		if srvErr := n.srv.Close(); srvErr != nil && err == nil {
			err = srvErr
		}
		if storeErr := n.runs.Close(); storeErr != nil && err == nil {
			err = storeErr
		}
	})
	return err
}

func (n *Node) closeStore() {
	if err := n.runs.Close(); err != nil {
		n.log.WithError(err).Warn("failed to close run store")
	}
}

func (n *Node) newSession(ep *link.Endpoint) (link.Handler, func(), error) {
	s, err := arq.NewSession(n.conf.ARQ.Config(), n.msg, ep, n.m)
	if err != nil {
		return nil, nil, err
	}
	s.OnComplete(func(sum arq.RunSummary) {
		if err := n.runs.Record(sum); err != nil {
			n.log.WithError(err).Errorf("failed to record run %s", sum.ID)
		}
	})

	n.mu.Lock()
	n.sessions[s.ID()] = &sessionEntry{s: s, remote: ep.RemoteAddr().String(), connected: time.Now()}
	n.mu.Unlock()
	n.m.Record(metrics.SessionOpened)

	release := func() {
		n.mu.Lock()
		delete(n.sessions, s.ID())
		n.mu.Unlock()
		n.m.Record(metrics.SessionReleased)
	}
	return s, release, nil
}

// Sessions returns the sessions of all connected peers, oldest first.
func (n *Node) Sessions() []SessionInfo {
	n.mu.RLock()
	infos := make([]SessionInfo, 0, len(n.sessions))
	for _, e := range n.sessions {
		infos = append(infos, e.info())
	}
	n.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Connected.Before(infos[j].Connected)
	})
	return infos
}

// Session returns the session with the given ID.
func (n *Node) Session(id uuid.UUID) (SessionInfo, error) {
	e, ok := n.entry(id)
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return e.info(), nil
}

// ResetSession restarts the run of a connected peer.
func (n *Node) ResetSession(id uuid.UUID) error {
	e, ok := n.entry(id)
	if !ok {
		return ErrSessionNotFound
	}
	e.s.Reset()
	return nil
}

// Runs returns the summaries of finished runs.
func (n *Node) Runs() ([]arq.RunSummary, error) {
	return n.runs.Runs()
}

// Run returns one finished run.
func (n *Node) Run(id uuid.UUID) (arq.RunSummary, error) {
	return n.runs.Run(id)
}

func (n *Node) entry(id uuid.UUID) (*sessionEntry, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.sessions[id]
	return e, ok
}

func (e *sessionEntry) info() SessionInfo {
	return SessionInfo{Remote: e.remote, Connected: e.connected, Status: e.s.Status()}
}
