package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracer wires an emitter to a synchronous in-memory exporter.
func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, NewOTelEmitter(otel.Tracer("test"))
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		RunID:  "run-001",
		Seq:    3,
		StepID: "generate_recoding",
		Msg:    MsgStepCompleted,
		Meta: map[string]interface{}{
			"model":     "claude-sonnet-4-20250514",
			"tokens_in": 1500,
			"artifact":  "recoding",
			"decision":  "approved",
			"attempt":   2,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]

	if span.Name != MsgStepCompleted {
		t.Errorf("span name = %q, want %q", span.Name, MsgStepCompleted)
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["surveyflow.run_id"]; got != "run-001" {
		t.Errorf("run_id = %v", got)
	}
	if got := attrs["surveyflow.seq"]; got != int64(3) {
		t.Errorf("seq = %v", got)
	}
	if got := attrs["surveyflow.step_id"]; got != "generate_recoding" {
		t.Errorf("step_id = %v", got)
	}

	// Well-known meta keys land under their namespaced names.
	if got := attrs["surveyflow.llm.model"]; got != "claude-sonnet-4-20250514" {
		t.Errorf("model = %v", got)
	}
	if got := attrs["surveyflow.llm.tokens_in"]; got != int64(1500) {
		t.Errorf("tokens_in = %v", got)
	}
	if got := attrs["surveyflow.artifact"]; got != "recoding" {
		t.Errorf("artifact = %v", got)
	}
	if got := attrs["surveyflow.review.decision"]; got != "approved" {
		t.Errorf("decision = %v", got)
	}
	if got := attrs["surveyflow.attempt"]; got != int64(2) {
		t.Errorf("attempt = %v", got)
	}
}

func TestOTelEmitter_EmitWithError(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		RunID:  "run-001",
		Seq:    2,
		StepID: "generate_tables",
		Msg:    MsgRunFailed,
		Meta: map[string]interface{}{
			"error": "model: chat: invalid api key",
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]

	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want %v", span.Status.Code, codes.Error)
	}
	if span.Status.Description != "model: chat: invalid api key" {
		t.Errorf("description = %q", span.Status.Description)
	}
	if len(span.Events) == 0 {
		t.Error("error was not recorded as a span event")
	}
}

func TestOTelEmitter_MetaTypes(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		RunID: "run-001", Seq: 1, StepID: "a", Msg: MsgStepCompleted,
		Meta: map[string]interface{}{
			"latency_ms": 1500 * time.Millisecond,
			"cost_usd":   0.0125,
			"retryable":  true,
			"tokens_out": int64(900),
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)

	if got := attrs["surveyflow.step.latency_ms"]; got != int64(1500) {
		t.Errorf("latency_ms = %v, want milliseconds as int64", got)
	}
	if got := attrs["surveyflow.llm.cost_usd"]; got != 0.0125 {
		t.Errorf("cost_usd = %v", got)
	}
	if got := attrs["retryable"]; got != true {
		t.Errorf("retryable = %v", got)
	}
	if got := attrs["surveyflow.llm.tokens_out"]; got != int64(900) {
		t.Errorf("tokens_out = %v", got)
	}
}

func TestOTelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	emitter := NewOTelEmitter(otel.Tracer("test"))

	emitter.Emit(Event{RunID: "run-001", Seq: 1, StepID: "a", Msg: MsgStepCompleted})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := emitter.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if spans := exporter.GetSpans(); len(spans) != 1 {
		t.Errorf("spans after flush = %d, want 1", len(spans))
	}
}
