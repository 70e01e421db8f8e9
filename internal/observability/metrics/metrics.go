// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callinsight"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Ingestion metrics
	NotificationsReceived prometheus.Counter
	NotificationsSkipped  *prometheus.CounterVec
	RecordsCreated        prometheus.Counter
	DuplicateCreations    prometheus.Counter
	PipelinesStarted      prometheus.Counter

	// Stage metrics
	StageInvocations     *prometheus.CounterVec
	StageFailures        *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	TranscriptionRetries prometheus.Counter

	// Status tracking metrics
	ProcessingErrors  *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec

	// Publish metrics (pipeline starts, alerts)
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec

	// Alerting metrics
	AlertsDispatched prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_received_total",
			Help:      "Total number of storage notifications received",
		}),
		NotificationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Total number of notifications skipped without a pipeline start",
		}, []string{"reason"}),
		RecordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Total number of call records created",
		}),
		DuplicateCreations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_creations_total",
			Help:      "Total number of creation attempts rejected as duplicates",
		}),
		PipelinesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_started_total",
			Help:      "Total number of pipeline instances started",
		}),

		StageInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_invocations_total",
			Help:      "Total number of stage invocations",
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of failed stage invocations",
		}, []string{"stage"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of stage invocations in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_retries_total",
			Help:      "Total number of in-stage transcription retries",
		}),

		ProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_errors_total",
			Help:      "Total number of processing errors by status and error kind",
		}, []string{"status", "error_kind"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Total number of record status transitions written",
		}, []string{"status"}),

		PublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of messages published",
		}, []string{"topic"}),
		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of publish errors",
		}, []string{"topic"}),
		PublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		AlertsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Total number of operator alerts dispatched",
		}),
	}
}

// RecordNotification records a received notification.
func (m *Metrics) RecordNotification() {
	m.NotificationsReceived.Inc()
}

// RecordNotificationSkipped records a notification skipped for a reason.
func (m *Metrics) RecordNotificationSkipped(reason string) {
	m.NotificationsSkipped.WithLabelValues(reason).Inc()
}

// RecordCreated records a successful record creation.
func (m *Metrics) RecordCreated() {
	m.RecordsCreated.Inc()
}

// RecordDuplicate records a creation attempt that hit an existing record.
func (m *Metrics) RecordDuplicate() {
	m.DuplicateCreations.Inc()
}

// RecordPipelineStarted records a pipeline instance start.
func (m *Metrics) RecordPipelineStarted() {
	m.PipelinesStarted.Inc()
}

// RecordStage records one stage invocation and its outcome.
func (m *Metrics) RecordStage(stage string, err error, durationSeconds float64) {
	m.StageInvocations.WithLabelValues(stage).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordTranscriptionRetry records an in-stage transcription retry.
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordProcessingError records a processing error by status and kind.
func (m *Metrics) RecordProcessingError(status, errorKind string) {
	m.ProcessingErrors.WithLabelValues(status, errorKind).Inc()
}

// RecordStatusTransition records a status write.
func (m *Metrics) RecordStatusTransition(status string) {
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// RecordPublish records a publish attempt.
func (m *Metrics) RecordPublish(topic string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(topic).Inc()
	m.PublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordAlert records a dispatched alert.
func (m *Metrics) RecordAlert() {
	m.AlertsDispatched.Inc()
}
