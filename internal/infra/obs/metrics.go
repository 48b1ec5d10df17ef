package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"propchat/internal/app/delivery"
	"propchat/internal/app/messaging"
	"propchat/internal/domain/chat"
)

// Metrics owns the process collectors. Each instance has its own registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	conversations     *prometheus.CounterVec
	creationConflicts prometheus.Counter
	messages          *prometheus.CounterVec
	receipts          prometheus.Counter
	notifications     *prometheus.CounterVec
	sessions          prometheus.Gauge
	httpDuration      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propchat",
			Name:      "conversations_total",
			Help:      "findOrCreate outcomes by result (created, reused).",
		}, []string{"result"}),
		creationConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "propchat",
			Name:      "conversation_conflicts_recovered_total",
			Help:      "Creation races resolved by re-reading the winner.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propchat",
			Name:      "messages_appended_total",
			Help:      "Messages appended by sender role.",
		}, []string{"role"}),
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "propchat",
			Name:      "read_receipts_added_total",
			Help:      "Read receipts added by markRead.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propchat",
			Name:      "notifications_total",
			Help:      "Delivery notifier outcomes (queued, dropped, failed).",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "propchat",
			Name:      "realtime_sessions",
			Help:      "Connected push sessions.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "propchat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.conversations,
		m.creationConflicts,
		m.messages,
		m.receipts,
		m.notifications,
		m.sessions,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for gRPC server metrics or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConversationCreated() { m.conversations.WithLabelValues("created").Inc() }
func (m *Metrics) ConversationReused()  { m.conversations.WithLabelValues("reused").Inc() }
func (m *Metrics) CreationConflict()    { m.creationConflicts.Inc() }

func (m *Metrics) MessageAppended(role chat.Role) {
	m.messages.WithLabelValues(string(role)).Inc()
}

func (m *Metrics) ReceiptsAdded(n int) {
	m.receipts.Add(float64(n))
}

func (m *Metrics) NotificationQueued()  { m.notifications.WithLabelValues("queued").Inc() }
func (m *Metrics) NotificationDropped() { m.notifications.WithLabelValues("dropped").Inc() }
func (m *Metrics) NotificationFailed()  { m.notifications.WithLabelValues("failed").Inc() }

func (m *Metrics) SessionOpened() { m.sessions.Inc() }
func (m *Metrics) SessionClosed() { m.sessions.Dec() }

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

var (
	_ messaging.Metrics = (*Metrics)(nil)
	_ delivery.Metrics  = (*Metrics)(nil)
)
