package discovery_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/discovery/discoverytest"
	"github.com/lettin/lettin/internal/metrics"
	"github.com/lettin/lettin/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTID = 1234

var (
	hallID    = [protocol.AddressSize]byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x70}
	kitchenID = [protocol.AddressSize]byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}
)

func newSession(t *testing.T, tr *discoverytest.Transport, cfg discovery.Config, opts ...discovery.Option) *discovery.Session {
	t.Helper()
	if cfg.Window == 0 {
		cfg.Window = 150 * time.Millisecond
	}
	opts = append([]discovery.Option{discovery.WithTransactionIDs(func() uint16 { return testTID })}, opts...)
	s := discovery.NewSession(tr, cfg, opts...)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func TestSession_SendsDiscoverRequest(t *testing.T) {
	tr := discoverytest.NewTransport()
	s := newSession(t, tr, discovery.Config{})

	s.Discover(context.Background())

	sent := tr.Sent()
	require.Len(t, sent, 1)

	f, err := protocol.DecodeFrame(sent[0])
	require.NoError(t, err)
	assert.True(t, f.IsBroadcast())
	assert.Equal(t, protocol.CommandDiscover, f.Tag)
	assert.Equal(t, uint16(testTID), f.TransactionID)
	assert.Equal(t, uint16(1), f.Count)

	var req protocol.DiscoverRequest
	require.NoError(t, json.Unmarshal(f.Payload, &req))
	assert.Equal(t, protocol.DiscoverRequest{Tid: testTID, Cmd: 1, Token: protocol.DefaultToken}, req)

	dsts := tr.Destinations()
	require.Len(t, dsts, 1)
	assert.Equal(t, "255.255.255.255:7000", dsts[0].String())
}

func TestSession_CollectsResponses(t *testing.T) {
	tr := discoverytest.NewTransport()
	tr.OnSend = func([]byte) {
		tr.Inject(discoverytest.Response(hallID, "Hall", testTID), nil)
		tr.Inject(discoverytest.Response(hallID, "Kitchen", testTID), nil)
		tr.Inject(discoverytest.Response(hallID, "Hall", testTID), nil)
	}
	s := newSession(t, tr, discovery.Config{})

	result := s.Discover(context.Background())

	// same MAC with different names are both kept; the exact duplicate collapses
	require.Len(t, result, 2)
	assert.Equal(t, "Hall", result[0].Name)
	assert.Equal(t, "Kitchen", result[1].Name)
	for _, g := range result {
		assert.Equal(t, "001a2b3c4d5e6f70", g.MAC)
		assert.Equal(t, "192.168.1.20:7000", g.Addr)
		assert.False(t, g.DiscoveredAt.IsZero())
	}

	latest, ok := s.Results().Latest()
	require.True(t, ok)
	assert.Equal(t, result, latest)
	assert.Equal(t, discovery.StateIdle, s.State())
}

func TestSession_EmptyResult(t *testing.T) {
	tr := discoverytest.NewTransport()
	s := newSession(t, tr, discovery.Config{})

	result := s.Discover(context.Background())
	assert.NotNil(t, result)
	assert.Empty(t, result)

	latest, ok := s.Results().Latest()
	require.True(t, ok)
	assert.Empty(t, latest)
}

func TestSession_LateResponseDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDiscovery(reg)

	tr := discoverytest.NewTransport()
	s := newSession(t, tr, discovery.Config{}, discovery.WithMetrics(m))

	first := s.Discover(context.Background())
	assert.Empty(t, first)

	tr.Inject(discoverytest.Response(hallID, "Hall", testTID), nil)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DatagramsDropped.WithLabelValues("window_closed")) == 1
	}, time.Second, 10*time.Millisecond)

	second := s.Discover(context.Background())
	assert.Empty(t, second)
}

func TestSession_AllSendsFailPublishesImmediately(t *testing.T) {
	tr := discoverytest.NewTransport()
	tr.SendErr = func([]byte) error { return errors.New("network unreachable") }
	s := newSession(t, tr, discovery.Config{Window: 5 * time.Second})

	sub := s.Results().Subscribe()
	defer sub.Close()

	start := time.Now()
	result := s.Discover(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, result)

	select {
	case got := <-sub.C:
		assert.Empty(t, got)
	case <-time.After(time.Second):
		t.Fatal("empty result not published")
	}
}

func TestSession_PartialSendFailure(t *testing.T) {
	tr := discoverytest.NewTransport()
	tr.SendErr = func(frame []byte) error {
		f, err := protocol.DecodeFrame(frame)
		if err == nil && f.Index == 0 {
			return errors.New("no buffer space")
		}
		return nil
	}
	tr.OnSend = func(frame []byte) {
		tr.Inject(discoverytest.Response(kitchenID, "Kitchen", testTID), nil)
	}

	// a long token pushes the request over one fragment
	s := newSession(t, tr, discovery.Config{Token: strings.Repeat("t", 600)})

	result := s.Discover(context.Background())

	assert.Len(t, tr.Sent(), 1)
	require.Len(t, result, 1)
	assert.Equal(t, "Kitchen", result[0].Name)
}

func TestSession_MalformedDatagramDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDiscovery(reg)

	tr := discoverytest.NewTransport()
	tr.OnSend = func([]byte) {
		tr.Inject(make([]byte, 10), nil)
		tr.Inject(discoverytest.Response(hallID, "Hall", testTID), nil)
	}
	s := newSession(t, tr, discovery.Config{}, discovery.WithMetrics(m))

	result := s.Discover(context.Background())

	require.Len(t, result, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues("malformed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatagramsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")))
}

func TestSession_InvalidBodyKeepsEmptyName(t *testing.T) {
	tr := discoverytest.NewTransport()
	tr.OnSend = func([]byte) {
		tr.Inject(protocol.EncodeResponse(hallID, protocol.CommandDiscover, testTID, 0, []byte("{not json")), nil)
	}
	s := newSession(t, tr, discovery.Config{})

	result := s.Discover(context.Background())

	require.Len(t, result, 1)
	assert.Equal(t, "", result[0].Name)
	assert.Equal(t, "001a2b3c4d5e6f70", result[0].MAC)
}

func TestSession_ZeroIdentityFallsBackToBodyMac(t *testing.T) {
	tr := discoverytest.NewTransport()
	tr.OnSend = func([]byte) {
		body := []byte(`{"Obj":{"Name":"Porch"},"Mac":"AABBCCDDEEFF0011"}`)
		tr.Inject(protocol.EncodeResponse([protocol.AddressSize]byte{}, protocol.CommandDiscover, testTID, 0, body), nil)
	}
	s := newSession(t, tr, discovery.Config{})

	result := s.Discover(context.Background())

	require.Len(t, result, 1)
	assert.Equal(t, "aabbccddeeff0011", result[0].MAC)
	assert.Equal(t, "Porch", result[0].Name)
}

func TestSession_TransactionFiltering(t *testing.T) {
	stale := func() []byte {
		return discoverytest.Response(kitchenID, "Kitchen", testTID+1)
	}
	noTid := func() []byte {
		body := []byte(`{"Obj":{"Name":"Porch"}}`)
		return protocol.EncodeResponse(hallID, protocol.CommandDiscover, testTID, 0, body)
	}

	tests := []struct {
		name  string
		match bool
		want  []string
	}{
		{name: "loose by default", match: false, want: []string{"Kitchen", "Porch"}},
		{name: "match transaction", match: true, want: []string{"Porch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := discoverytest.NewTransport()
			tr.OnSend = func([]byte) {
				tr.Inject(stale(), nil)
				tr.Inject(noTid(), nil)
			}
			s := newSession(t, tr, discovery.Config{MatchTransaction: tt.match})

			result := s.Discover(context.Background())

			names := make([]string, 0, len(result))
			for _, g := range result {
				names = append(names, g.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSession_StartDiscoveryPublishes(t *testing.T) {
	tr := discoverytest.NewTransport()
	tr.OnSend = func([]byte) {
		tr.Inject(discoverytest.Response(hallID, "Hall", testTID), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 7000})
	}
	s := newSession(t, tr, discovery.Config{Window: 300 * time.Millisecond})

	sub := s.Results().Subscribe()
	defer sub.Close()

	s.StartDiscovery()
	require.Eventually(t, func() bool {
		return s.State() == discovery.StateDiscovering
	}, time.Second, 5*time.Millisecond)

	select {
	case result := <-sub.C:
		require.Len(t, result, 1)
		assert.Equal(t, "10.0.0.7", result[0].IP())
	case <-time.After(2 * time.Second):
		t.Fatal("result not published")
	}
}

func TestSession_StopCutsWindowShort(t *testing.T) {
	tr := discoverytest.NewTransport()
	s := discovery.NewSession(tr, discovery.Config{Window: 10 * time.Second})
	require.NoError(t, s.Start())

	done := make(chan []*discovery.Gateway, 1)
	go func() {
		done <- s.Discover(context.Background())
	}()

	require.Eventually(t, func() bool {
		return len(tr.Sent()) == 1
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	select {
	case result := <-done:
		assert.Empty(t, result)
	case <-time.After(2 * time.Second):
		t.Fatal("Discover did not return after Stop")
	}
}

func TestSession_StartTwice(t *testing.T) {
	tr := discoverytest.NewTransport()
	s := newSession(t, tr, discovery.Config{})
	assert.ErrorIs(t, s.Start(), discovery.ErrSessionStarted)
}

func TestSession_ConfigDefaults(t *testing.T) {
	s := discovery.NewSession(discoverytest.NewTransport(), discovery.Config{})
	assert.Equal(t, discovery.DefaultConfig(), s.Config())
	assert.Equal(t, "idle", s.State().String())
}
