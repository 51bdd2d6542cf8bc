package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reqTotal        *prometheus.CounterVec
	reqLatency      *prometheus.HistogramVec
	errTotal        *prometheus.CounterVec
	ticketsCreated  *prometheus.CounterVec
	ticketsResolved *prometheus.CounterVec
	eventsDropped   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers every collector on reg. Passing a fresh prometheus.NewRegistry()
// keeps tests isolated from the global registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reqTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests."},
			[]string{"route", "method", "status"},
		),
		reqLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		errTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_errors_total", Help: "HTTP requests answered with an error body."},
			[]string{"route", "method", "code"},
		),
		ticketsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tickets_created_total", Help: "Tickets created, by priority."},
			[]string{"priority"},
		),
		ticketsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tickets_resolved_total", Help: "Tickets resolved, by resolution type."},
			[]string{"resolution_type"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "events_dropped_total", Help: "Ticket events dropped because the relay buffer was full."},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.reqTotal, m.reqLatency, m.errTotal, m.ticketsCreated, m.ticketsResolved, m.eventsDropped)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.reqTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.reqLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errTotal.WithLabelValues(route, method, code).Inc()
}

// RecordTicketCreated counts a new ticket.
func (m *Metrics) RecordTicketCreated(priority string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(priority).Inc()
}

// RecordTicketResolved counts a resolution.
func (m *Metrics) RecordTicketResolved(resolutionType string) {
	if m == nil {
		return
	}
	m.ticketsResolved.WithLabelValues(resolutionType).Inc()
}

// RecordEventDropped counts an event the relay could not buffer.
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
