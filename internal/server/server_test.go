package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/discovery/discoverytest"
	"github.com/lettin/lettin/internal/metrics"
	"github.com/lettin/lettin/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hallID = [8]byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x70}

type fixture struct {
	server  *Server
	http    *httptest.Server
	session *discovery.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tr := discoverytest.NewTransport()
	tr.OnSend = func(frame []byte) {
		tr.Inject(discoverytest.Response(hallID, "Hall", discoverytest.RequestTID(frame)), nil)
	}

	reg := metrics.NewRegistry()
	session := discovery.NewSession(tr, discovery.Config{Window: 100 * time.Millisecond},
		discovery.WithMetrics(metrics.NewDiscovery(reg)))
	require.NoError(t, session.Start())

	srv, err := New(&Config{Addr: "127.0.0.1:0"}, session, reg)
	require.NoError(t, err)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		session.Stop()
	})
	return &fixture{server: srv, http: hs, session: session}
}

func (f *fixture) getGateways(t *testing.T) GatewaysResponse {
	t.Helper()
	resp, err := http.Get(f.http.URL + "/api/gateways")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body GatewaysResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) GatewaysResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg GatewaysResponse
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandleGateways_BeforeFirstCycle(t *testing.T) {
	f := newFixture(t)

	body := f.getGateways(t)
	assert.False(t, body.Published)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Gateways)
	assert.Equal(t, "idle", body.State)
}

func TestHandleDiscover(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.http.URL+"/api/discover", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, published := f.session.Results().Latest()
		return published
	}, 2*time.Second, 20*time.Millisecond)

	body := f.getGateways(t)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Hall", body.Gateways[0].Name)
	assert.Equal(t, "001a2b3c4d5e6f70", body.Gateways[0].MAC)
}

func TestHandleDiscover_WrongMethod(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/discover")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleState(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "idle", body["state"])
}

func TestHandleVersion(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, version.Version, body["version"])
	assert.NotEmpty(t, body["platform"])
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not found", body["error"])
}

func TestWebSocket_ReplaysLatest(t *testing.T) {
	f := newFixture(t)
	f.session.Discover(context.Background())

	conn := f.dial(t)
	msg := readResult(t, conn)

	assert.Equal(t, "result", msg.Type)
	assert.True(t, msg.Published)
	require.Len(t, msg.Gateways, 1)
	assert.Equal(t, "Hall", msg.Gateways[0].Name)
}

func TestWebSocket_DiscoverCommand(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.Eventually(t, func() bool {
		return f.server.GetActiveConnections() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("discover")))

	msg := readResult(t, conn)
	require.Equal(t, 1, msg.Count)
	assert.Equal(t, "001a2b3c4d5e6f70", msg.Gateways[0].MAC)
}

func TestWebSocket_ClosedOnSessionStop(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.Eventually(t, func() bool {
		return f.server.GetActiveConnections() == 1
	}, time.Second, 10*time.Millisecond)

	f.session.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.session.Discover(context.Background())

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lettin_discovery_cycles_total{result="ok"} 1`)
	assert.Contains(t, string(data), "lettin_gateways_found 1")
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.server.Shutdown(ctx))
}
