package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscovery_Counters(t *testing.T) {
	reg := NewRegistry()
	m := NewDiscovery(reg)

	m.Received()
	m.Received()
	m.Dropped("short")
	m.FragmentSent(nil)
	m.FragmentSent(errors.New("no route"))
	m.CycleDone("ok", 3, 2.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatagramsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues("short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsSent.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsSent.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GatewaysFound))
}

func TestDiscovery_NilSafe(t *testing.T) {
	var m *Discovery
	assert.NotPanics(t, func() {
		m.Received()
		m.Dropped("x")
		m.FragmentSent(nil)
		m.CycleDone("ok", 0, 0)
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewDiscovery(reg)
	m.Received()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "lettin_datagrams_received_total 1"))
}
