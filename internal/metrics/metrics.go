package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create independent sets.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	Medications        prometheus.Gauge
	DosesTaken         prometheus.Counter
	AdherenceRate      prometheus.Gauge
	StreakDays         prometheus.Gauge
	PersistFailures    prometheus.Counter
	RemindersDelivered *prometheus.CounterVec
	InteractionsFound  *prometheus.CounterVec
	KnowledgeReloads   prometheus.Counter
	ActiveConnections  prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	const ns = "meditrack"

	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests by status code.",
		}, []string{"code"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		Medications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "medications",
			Help:      "Medications currently tracked.",
		}),
		DosesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "doses_taken_total",
			Help:      "Doses marked as taken.",
		}),
		AdherenceRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "adherence_rate_percent",
			Help:      "Rolling adherence over the configured window.",
		}),
		StreakDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "streak_days",
			Help:      "Consecutive fully completed days.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "persist_failures_total",
			Help:      "Snapshot saves that failed and were rolled back.",
		}),
		RemindersDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reminders_delivered_total",
			Help:      "Dose reminders delivered by channel.",
		}, []string{"channel"}),
		InteractionsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "interactions_flagged_total",
			Help:      "Interaction records returned by severity.",
		}, []string{"severity"}),
		KnowledgeReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "knowledge_base_reloads_total",
			Help:      "Knowledge base hot reloads.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "websocket_connections",
			Help:      "Open notification websockets.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.Medications,
		m.DosesTaken,
		m.AdherenceRate,
		m.StreakDays,
		m.PersistFailures,
		m.RemindersDelivered,
		m.InteractionsFound,
		m.KnowledgeReloads,
		m.ActiveConnections,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDoseTaken() {
	m.DosesTaken.Inc()
}

func (m *Metrics) RecordPersistFailure() {
	m.PersistFailures.Inc()
}

func (m *Metrics) RecordReminder(channel string) {
	m.RemindersDelivered.WithLabelValues(channel).Inc()
}

func (m *Metrics) RecordInteraction(severity string) {
	m.InteractionsFound.WithLabelValues(severity).Inc()
}

func (m *Metrics) RecordKnowledgeReload() {
	m.KnowledgeReloads.Inc()
}

// SetState updates the gauges that mirror tracker state.
func (m *Metrics) SetState(medications, adherence, streak int) {
	m.Medications.Set(float64(medications))
	m.AdherenceRate.Set(float64(adherence))
	m.StreakDays.Set(float64(streak))
}

func (m *Metrics) IncrementActiveConnections() {
	m.ActiveConnections.Inc()
}

func (m *Metrics) DecrementActiveConnections() {
	m.ActiveConnections.Dec()
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
