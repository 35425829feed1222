package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the server's Prometheus collectors. Each Server gets its own
// registry so tests never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	// Checkins counts scan outcomes: "accepted", "pending_review" or a
	// rejection code such as "out_of_radius".
	Checkins *prometheus.CounterVec
	// QRIssued counts attendance starts.
	QRIssued prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Checkins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Check-in attempts by outcome.",
		}, []string{"outcome"}),
		QRIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qr_tokens_issued_total",
			Help: "QR tokens issued by starting attendance.",
		}),
	}
	m.registry.MustRegister(
		m.Checkins,
		m.QRIssued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) checkin(outcome string) {
	if m == nil {
		return
	}
	m.Checkins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) qrIssued() {
	if m == nil {
		return
	}
	m.QRIssued.Inc()
}
