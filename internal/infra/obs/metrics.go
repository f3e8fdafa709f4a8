package obs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	conversations *prometheus.CounterVec
	conflicts     prometheus.Counter
	appended      prometheus.Counter
	markedRead    prometheus.Counter
	retries       *prometheus.CounterVec
	dispatch      *prometheus.HistogramVec
	httpLatency   *prometheus.HistogramVec
	published     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carchat",
			Name:      "conversations_ensured_total",
			Help:      "Ensure calls by outcome (created or existing).",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carchat",
			Name:      "ensure_conflict_retries_total",
			Help:      "Lookups repeated after a dedup conflict.",
		}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carchat",
			Name:      "messages_appended_total",
			Help:      "Messages stored.",
		}),
		markedRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carchat",
			Name:      "messages_marked_read_total",
			Help:      "Messages flipped from unread to read.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carchat",
			Name:      "store_retries_total",
			Help:      "Commands re-dispatched after a transient store error.",
		}, []string{"command"}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carchat",
			Name:      "dispatch_duration_seconds",
			Help:      "Command and query handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "key", "result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carchat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carchat",
			Name:      "events_published_total",
			Help:      "Outbox deliveries by event name and result.",
		}, []string{"event", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.conversations, m.conflicts, m.appended, m.markedRead,
		m.retries, m.dispatch, m.httpLatency, m.published,
	)
	return m
}

// Registry is what the /metrics handler gathers from.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConversationEnsured(created bool) {
	if m == nil {
		return
	}
	outcome := "existing"
	if created {
		outcome = "created"
	}
	m.conversations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConflictRetried() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) MessageAppended() {
	if m != nil {
		m.appended.Inc()
	}
}

func (m *Metrics) MessagesMarkedRead(n int) {
	if m != nil && n > 0 {
		m.markedRead.Add(float64(n))
	}
}

func (m *Metrics) StoreRetried(command string) {
	if m != nil {
		m.retries.WithLabelValues(command).Inc()
	}
}

func (m *Metrics) ObserveDispatch(kind, key string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.dispatch.WithLabelValues(kind, key, resultLabel(err)).Observe(took.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}

func (m *Metrics) EventPublished(name string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(name, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
