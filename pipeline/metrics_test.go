package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crosstab-io/surveyflow/pipeline/emit"
	"github.com/crosstab-io/surveyflow/pipeline/store"
)

func TestPrometheusMetrics_Counters(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.IncrementRuns("completed")
	m.IncrementRuns("completed")
	m.IncrementRuns("suspended")
	m.IncrementRetries("generate_recoding", "external_service")
	m.IncrementReviews("recoding", "approved")
	m.IncrementValidationFailures("tables")
	m.RecordTokens("gpt-4o", 1200, 300)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 2 {
		t.Errorf("runs_total{completed} = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("suspended")); got != 1 {
		t.Errorf("runs_total{suspended} = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.retries.WithLabelValues("generate_recoding", "external_service")); got != 1 {
		t.Errorf("retries_total = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.reviews.WithLabelValues("recoding", "approved")); got != 1 {
		t.Errorf("reviews_total = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.validationFailures.WithLabelValues("tables")); got != 1 {
		t.Errorf("validation_failures_total = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-4o", "in")); got != 1200 {
		t.Errorf("llm_tokens_total{in} = %f, want 1200", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-4o", "out")); got != 300 {
		t.Errorf("llm_tokens_total{out} = %f, want 300", got)
	}
}

func TestPrometheusMetrics_DisableEnable(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.Disable()
	m.IncrementRuns("completed")
	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 0 {
		t.Errorf("disabled counter moved: %f", got)
	}

	m.Enable()
	m.IncrementRuns("completed")
	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("re-enabled counter = %f, want 1", got)
	}
}

func TestPrometheusMetrics_EngineIntegration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	calls := 0
	flaky := Step[testState]{
		ID: "flaky", Role: RolePlain,
		Run: func(_ context.Context, s testState) Result[testState] {
			calls++
			if calls == 1 {
				return Result[testState]{Err: NewExternalServiceError("model", "chat", true,
					errors.New("timeout"))}
			}
			return Result[testState]{State: s}
		},
	}

	reg := NewRegistry[testState]()
	if err := reg.Register(flaky); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	eng := New(reg, store.NewMemStore[testState](), emit.NewNullEmitter(), Options{
		Metrics: m,
		Retry:   &RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	})

	if _, err := eng.Run(context.Background(), "run-1", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("runs_total{completed} = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.retries.WithLabelValues("flaky", "external_service")); got != 1 {
		t.Errorf("retries_total{flaky} = %f, want 1", got)
	}

	// One success and one error observation in the latency histogram.
	if got := testutil.CollectAndCount(registry, "surveyflow_step_latency_ms"); got != 2 {
		t.Errorf("step_latency_ms series = %d, want 2", got)
	}
}

func TestPrometheusMetrics_ReviewOutcomes(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	eng, _, _ := newTestEngine(t, reviewPipeline(), Options{Metrics: m})
	ctx := context.Background()

	out, err := eng.Run(ctx, "run-1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != store.StatusSuspended {
		t.Fatalf("status = %s, want suspended", out.Status)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("suspended")); got != 1 {
		t.Errorf("runs_total{suspended} = %f, want 1", got)
	}

	decision := Approve()
	if _, err := eng.Resume(ctx, "run-1", &decision); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if got := testutil.ToFloat64(m.reviews.WithLabelValues("doc", "approved")); got != 1 {
		t.Errorf("reviews_total{doc,approved} = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("runs_total{completed} = %f, want 1", got)
	}
}
