package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_chat_events_total",
			Help: "Total number of inbound chat events by kind.",
		},
		[]string{"kind"},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_translations_total",
			Help: "Total number of query translations by result shape.",
		},
		[]string{"shape"},
	)
	completionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablechat_completion_latency_seconds",
			Help:    "Completion service round-trip latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	completionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_completion_failures_total",
			Help: "Total number of failed or unusable completion service calls.",
		},
	)
	rendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_renders_total",
			Help: "Total number of rendered payloads by kind.",
		},
		[]string{"kind"},
	)
	renderDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_render_degraded_total",
			Help: "Total number of renders that degraded to a raw dump.",
		},
	)
	transcribeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_transcribe_failures_total",
			Help: "Total number of failed transcription calls.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablechat_active_sessions",
			Help: "Current number of live conversation sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatEventsTotal,
		translationsTotal,
		completionLatencySeconds,
		completionFailuresTotal,
		rendersTotal,
		renderDegradedTotal,
		transcribeFailuresTotal,
		activeSessions,
	)
}

func ObserveChatEvent(kind string) {
	chatEventsTotal.WithLabelValues(kind).Inc()
}

func ObserveTranslation(shape string) {
	translationsTotal.WithLabelValues(shape).Inc()
}

func ObserveCompletion(elapsed time.Duration, failed bool) {
	completionLatencySeconds.Observe(elapsed.Seconds())
	if failed {
		completionFailuresTotal.Inc()
	}
}

func ObserveRender(kind string, degraded bool) {
	rendersTotal.WithLabelValues(kind).Inc()
	if degraded {
		renderDegradedTotal.Inc()
	}
}

func IncrementTranscribeFailure() {
	transcribeFailuresTotal.Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
