package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// pipeline execution.
//
// Metrics exposed (all namespaced with "surveyflow_"):
//
//  1. step_latency_ms (histogram): step execution duration in milliseconds.
//     Labels: step_id, status (success/error).
//
//  2. retries_total (counter): cumulative retry attempts.
//     Labels: step_id, reason.
//
//  3. runs_total (counter): run outcomes.
//     Labels: status (completed/suspended/failed).
//
//  4. reviews_total (counter): review decisions by artifact.
//     Labels: artifact, outcome (approved/rejected/auto_approved).
//
//  5. validation_failures_total (counter): failed validation passes.
//     Labels: artifact.
//
//  6. llm_tokens_total (counter): tokens exchanged with the generative model.
//     Labels: model, direction (in/out).
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe.
type PrometheusMetrics struct {
	stepLatency        *prometheus.HistogramVec
	retries            *prometheus.CounterVec
	runs               *prometheus.CounterVec
	reviews            *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	llmTokens          *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all pipeline metrics with the
// provided registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		enabled: true,
	}

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "surveyflow",
		Name:      "step_latency_ms",
		Help:      "Step execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"step_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyflow",
		Name:      "retries_total",
		Help:      "Cumulative count of step retry attempts",
	}, []string{"step_id", "reason"})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyflow",
		Name:      "runs_total",
		Help:      "Run outcomes by final status",
	}, []string{"status"})

	pm.reviews = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyflow",
		Name:      "reviews_total",
		Help:      "Review decisions by artifact and outcome",
	}, []string{"artifact", "outcome"})

	pm.validationFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyflow",
		Name:      "validation_failures_total",
		Help:      "Validation passes that found structural errors",
	}, []string{"artifact"})

	pm.llmTokens = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyflow",
		Name:      "llm_tokens_total",
		Help:      "Tokens exchanged with the generative model",
	}, []string{"model", "direction"})

	return pm
}

// RecordStepLatency records the execution duration of a step.
//
// Status is the execution outcome ("success" or "error").
func (pm *PrometheusMetrics) RecordStepLatency(stepID string, latency time.Duration, status string) {
	if !pm.recording() {
		return
	}

	pm.stepLatency.WithLabelValues(stepID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries increments the retry counter for a step.
//
// Reason classifies the retry cause, e.g. "external_service".
func (pm *PrometheusMetrics) IncrementRetries(stepID, reason string) {
	if !pm.recording() {
		return
	}

	pm.retries.WithLabelValues(stepID, reason).Inc()
}

// IncrementRuns counts a run reaching a final status for this process:
// "completed", "suspended", or "failed".
func (pm *PrometheusMetrics) IncrementRuns(status string) {
	if !pm.recording() {
		return
	}

	pm.runs.WithLabelValues(status).Inc()
}

// IncrementReviews counts a review decision for an artifact.
//
// Outcome is "approved", "rejected", or "auto_approved".
func (pm *PrometheusMetrics) IncrementReviews(artifact, outcome string) {
	if !pm.recording() {
		return
	}

	pm.reviews.WithLabelValues(artifact, outcome).Inc()
}

// IncrementValidationFailures counts a validation pass that found errors.
func (pm *PrometheusMetrics) IncrementValidationFailures(artifact string) {
	if !pm.recording() {
		return
	}

	pm.validationFailures.WithLabelValues(artifact).Inc()
}

// RecordTokens counts tokens exchanged with the generative model.
func (pm *PrometheusMetrics) RecordTokens(model string, tokensIn, tokensOut int64) {
	if !pm.recording() {
		return
	}

	if tokensIn > 0 {
		pm.llmTokens.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		pm.llmTokens.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) recording() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
