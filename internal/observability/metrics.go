package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConversations prometheus.Gauge
	SendOutcomes        *prometheus.CounterVec
	SafetyFlags         *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	ModelLatency        prometheus.Histogram
	WSMessages          *prometheus.CounterVec
	Notifications       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments with reg. A nil reg uses the default
// registerer.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		ActiveConversations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of open child conversations.",
		}),
		SendOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_outcomes_total",
			Help:      "Message sends by outcome.",
		}, []string{"outcome"}),
		SafetyFlags: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_flags_total",
			Help:      "Safety flags raised by stage and flag.",
		}, []string{"stage", "flag"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Model provider errors by model and tag.",
		}, []string{"model", "tag"}),
		ModelLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Model call latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parent_notifications_total",
			Help:      "Parent notifications by type and severity.",
		}, []string{"type", "severity"}),
		gatherer: gatherer,
	}
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SendOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFlags(stage string, flags []string) {
	if m == nil {
		return
	}
	for _, f := range flags {
		m.SafetyFlags.WithLabelValues(stage, f).Inc()
	}
}

func (m *Metrics) ObserveProviderError(model, tag string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(model, tag).Inc()
}

func (m *Metrics) ObserveModelLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ModelLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveWSMessage(direction, typ string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, typ).Inc()
}

func (m *Metrics) ObserveNotification(typ, severity string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(typ, severity).Inc()
}

func (m *Metrics) ConversationOpened() {
	if m == nil {
		return
	}
	m.ActiveConversations.Inc()
}

func (m *Metrics) ConversationClosed() {
	if m == nil {
		return
	}
	m.ActiveConversations.Dec()
}

// Handler serves the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == prometheus.DefaultGatherer {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
