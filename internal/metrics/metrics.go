// Package metrics exposes Prometheus collectors for discovery traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lettin"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the /metrics HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Discovery holds the discovery session collectors.
// A nil *Discovery is valid and records nothing.
type Discovery struct {
	CyclesTotal       *prometheus.CounterVec // labels: result=ok|empty|build_failed|send_failed
	FragmentsSent     *prometheus.CounterVec // labels: result=ok|error
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec // labels: reason
	GatewaysFound     prometheus.Gauge
	CycleDuration     prometheus.Histogram
}

// NewDiscovery registers and returns the discovery collectors
func NewDiscovery(reg prometheus.Registerer) *Discovery {
	m := &Discovery{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_cycles_total",
			Help:      "Discovery cycles by outcome.",
		}, []string{"result"}),
		FragmentsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_sent_total",
			Help:      "Request fragments broadcast, by send result.",
		}, []string{"result"}),
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Inbound datagrams on the listening socket.",
		}),
		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Inbound datagrams not added to a result.",
		}, []string{"reason"}),
		GatewaysFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateways_found",
			Help:      "Gateways in the most recently published result.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_cycle_seconds",
			Help:      "Wall time of a discovery cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.CyclesTotal, m.FragmentsSent, m.DatagramsReceived,
		m.DatagramsDropped, m.GatewaysFound, m.CycleDuration)
	return m
}

// CycleDone records one finished cycle
func (m *Discovery) CycleDone(result string, gateways int, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.GatewaysFound.Set(float64(gateways))
	m.CycleDuration.Observe(seconds)
}

// FragmentSent records one fragment send attempt
func (m *Discovery) FragmentSent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.FragmentsSent.WithLabelValues("error").Inc()
		return
	}
	m.FragmentsSent.WithLabelValues("ok").Inc()
}

// Received records one inbound datagram
func (m *Discovery) Received() {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
}

// Dropped records one discarded datagram
func (m *Discovery) Dropped(reason string) {
	if m == nil {
		return
	}
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}
