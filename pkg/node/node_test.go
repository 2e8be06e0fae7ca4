package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/datalink/pkg/arq"
	"github.com/skycoin/datalink/pkg/link"
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

func testConfig() *Config {
	conf := DefaultConfig()
	conf.Link.Addr = "127.0.0.1:0"
	conf.Link.PollInterval = Duration(5 * time.Millisecond)
	conf.Interfaces.APIAddress = ""
	conf.ARQ.TransmitDelay = Duration(5 * time.Millisecond)
	conf.ARQ.AckTimeout = Duration(100 * time.Millisecond)
	conf.ARQ.AckFlushDelay = Duration(30 * time.Millisecond)
	conf.ARQ.Seed = 3
	return conf
}

func get(t *testing.T, h http.Handler, path string, v interface{}) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(v), path)
	}
	return rec.Code
}

func TestNode(t *testing.T) {
	conf := testConfig()
	n, err := New(conf)
	require.NoError(t, err)
	assert.Nil(t, n.APIAddr())

	startErr := make(chan error, 1)
	go func() { startErr <- n.Start(context.Background()) }()

	// Peer side.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ep, err := link.Dial(ctx, n.Addr().String(), conf.LinkConfig(), nil)
	require.NoError(t, err)
	peerConf := conf.ARQ.Config()
	peerConf.Seed = 4
	peer, err := arq.NewSession(peerConf, arq.Message{}, ep, nil)
	require.NoError(t, err)
	go func() { _ = ep.Serve(ctx, peer) }() //nolint:errcheck

	// The session shows up once the node accepted the connection.
	var sessions []SessionInfo
	require.Eventually(t, func() bool {
		sessions = n.Sessions()
		return len(sessions) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, peer.Begin())

	var runs []arq.RunSummary
	require.Eventually(t, func() bool {
		rs, rErr := n.Runs()
		runs = rs
		return rErr == nil && len(rs) == 1
	}, 20*time.Second, 20*time.Millisecond)

	msg, err := conf.BuildMessage()
	require.NoError(t, err)
	assert.Equal(t, msg.Digest(), runs[0].Digest)
	assert.Equal(t, msg.Bytes(), peer.Delivered())
	assert.Equal(t, sessions[0].ID, runs[0].Session)

	// API.
	var apiSessions []SessionInfo
	require.Equal(t, http.StatusOK, get(t, n, "/api/sessions", &apiSessions))
	require.Len(t, apiSessions, 1)
	assert.Equal(t, arq.Idle, apiSessions[0].State)
	assert.Equal(t, 26, apiSessions[0].Sent)

	var info SessionInfo
	require.Equal(t, http.StatusOK, get(t, n, "/api/sessions/"+sessions[0].ID.String(), &info))
	assert.Equal(t, sessions[0].ID, info.ID)

	var apiRuns []arq.RunSummary
	require.Equal(t, http.StatusOK, get(t, n, "/api/runs", &apiRuns))
	require.Len(t, apiRuns, 1)

	var run arq.RunSummary
	require.Equal(t, http.StatusOK, get(t, n, "/api/runs/"+runs[0].ID.String(), &run))
	assert.Equal(t, runs[0].Stats, run.Stats)

	assert.Equal(t, http.StatusBadRequest, get(t, n, "/api/runs/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, get(t, n, fmt.Sprintf("/api/runs/%s", sessions[0].ID), nil))
	assert.Equal(t, http.StatusNotFound, get(t, n, fmt.Sprintf("/api/sessions/%s", runs[0].ID), nil))

	// Operator reset starts a second run on the same connection.
	rec := httptest.NewRecorder()
	n.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessions[0].ID.String()+"/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		rs, rErr := n.Runs()
		return rErr == nil && len(rs) == 2
	}, 20*time.Second, 20*time.Millisecond)

	rec = httptest.NewRecorder()
	n.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `datalink_events_total{event="run_completed"} 2`))

	// Disconnecting the peer releases the session.
	require.NoError(t, ep.Close())
	require.Eventually(t, func() bool { return len(n.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, n.Close())
	assert.NoError(t, <-startErr)
}

func TestNode_InvalidConfig(t *testing.T) {
	conf := testConfig()
	conf.ARQ.Window = 0
	_, err := New(conf)
	assert.Error(t, err)

	conf = testConfig()
	conf.Store.Type = "redis"
	_, err = New(conf)
	assert.Error(t, err)
}
