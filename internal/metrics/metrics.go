package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// Metrics holds the service collectors on a private registry, so several
// instances (tests, CLI runs) never clash on registration.
type Metrics struct {
	registry       *prometheus.Registry
	interactions   *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	ingestMessages *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moment_interactions_recorded_total",
			Help: "Interactions recorded, by interaction type.",
		}, []string{"type"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moment_outcomes_recorded_total",
			Help: "Outcomes recorded, by outcome type.",
		}, []string{"type"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moment_query_duration_seconds",
			Help:    "Aggregation query latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moment_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		ingestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moment_ingest_messages_total",
			Help: "Stream messages consumed, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.interactions,
		m.outcomes,
		m.queryDuration,
		m.httpRequests,
		m.ingestMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// OtherType is the type label for producer-supplied types outside the known
// enums, so ingestion cannot grow the series count.
const OtherType = "other"

func (m *Metrics) InteractionRecorded(t events.InteractionType) {
	label := OtherType
	if t.Known() {
		label = string(t)
	}
	m.interactions.WithLabelValues(label).Inc()
}

func (m *Metrics) OutcomeRecorded(t events.OutcomeType) {
	label := OtherType
	if t.Known() {
		label = string(t)
	}
	m.outcomes.WithLabelValues(label).Inc()
}

func (m *Metrics) QueryObserved(op string, d time.Duration) {
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) HTTPRequest(route string, status int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// IngestMessage counts a consumed stream message; result is "ok" or "skipped".
func (m *Metrics) IngestMessage(result string) {
	m.ingestMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
