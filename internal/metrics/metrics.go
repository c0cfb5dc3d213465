// Package metrics exposes intake measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/claim-intake/internal/intake"
)

const namespace = "claims"

// Metrics implements intake.Recorder on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	conversations *prometheus.CounterVec
	analyses      *prometheus.CounterVec
	analysisTime  *prometheus.HistogramVec
	submissions   *prometheus.CounterVec
	fields        *prometheus.CounterVec
	busy          *prometheus.CounterVec
}

var _ intake.Recorder = (*Metrics)(nil)

// New registers the intake collectors along with Go and process metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_started_total",
			Help:      "Intake conversations started, by flow.",
		}, []string{"flow"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_total",
			Help:      "Evidence analyses completed, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		analysisTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent waiting on evidence analysis.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"mode"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Claim submissions, by outcome.",
		}, []string{"outcome"}),
		fields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_fields_total",
			Help:      "Fields populated by extraction, by field.",
		}, []string{"field"}),
		busy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_rejections_total",
			Help:      "Operations refused while a conversation was busy.",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.conversations, m.analyses, m.analysisTime, m.submissions, m.fields, m.busy,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ConversationStarted(flow string) {
	m.conversations.WithLabelValues(flow).Inc()
}

func (m *Metrics) AnalysisFinished(mode string, outcome intake.Outcome, took time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.analyses.WithLabelValues(mode, string(outcome)).Inc()
	m.analysisTime.WithLabelValues(mode).Observe(took.Seconds())
}

func (m *Metrics) FieldsExtracted(fields []string) {
	for _, f := range fields {
		m.fields.WithLabelValues(f).Inc()
	}
}

func (m *Metrics) SubmissionFinished(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BusyRejected(operation string) {
	m.busy.WithLabelValues(operation).Inc()
}
