// Package metrics exposes relay counters and gauges through prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gorelay"

// Metrics owns a private prometheus registry so several relays (and tests)
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	packets            *prometheus.CounterVec
	checksumMismatches prometheus.Counter
	resendsExhausted   prometheus.Counter
	droppedSends       prometheus.Counter
	rejectedConns      prometheus.Counter
	sessions           prometheus.Gauge
	aliases            prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "packets_total",
				Help:      "Packets dispatched, by verb.",
			},
			[]string{"verb"},
		),
		checksumMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checksum",
			Name:      "mismatches_total",
			Help:      "Packets answered with RESEND.",
		}),
		resendsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checksum",
			Name:      "exhausted_total",
			Help:      "Sessions dropped after too many bad checksums.",
		}),
		droppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "dropped_sends_total",
			Help:      "Outbound frames dropped because a peer queue was full or closed.",
		}),
		rejectedConns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rejected_total",
			Help:      "Connections refused because the server was full.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Open sessions.",
		}),
		aliases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "aliases",
			Help:      "Registered aliases.",
		}),
	}
	m.registry.MustRegister(
		m.packets,
		m.checksumMismatches,
		m.resendsExhausted,
		m.droppedSends,
		m.rejectedConns,
		m.sessions,
		m.aliases,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Packet(verb string)  { m.packets.WithLabelValues(verb).Inc() }
func (m *Metrics) ChecksumMismatch()   { m.checksumMismatches.Inc() }
func (m *Metrics) ResendsExhausted()   { m.resendsExhausted.Inc() }
func (m *Metrics) DroppedSend()        { m.droppedSends.Inc() }
func (m *Metrics) RejectedConnection() { m.rejectedConns.Inc() }
func (m *Metrics) SessionOpened()      { m.sessions.Inc() }
func (m *Metrics) SessionClosed()      { m.sessions.Dec() }
func (m *Metrics) SetAliases(n int)    { m.aliases.Set(float64(n)) }
