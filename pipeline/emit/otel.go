package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g. "step_completed", "run_suspended")
//   - Attributes: run id, seq, step id, and all event.Meta fields
//   - Status: error when event.Meta["error"] is set
//
// Events represent points in time, so spans are ended immediately; the batch
// span processor handles export.
//
// Usage:
//
//	tracer := otel.Tracer("surveyflow")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter using the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and ends an OpenTelemetry span for the event.
func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("surveyflow.run_id", event.RunID),
		attribute.Int("surveyflow.seq", event.Seq),
		attribute.String("surveyflow.step_id", event.StepID),
	)

	o.addMetaAttributes(span, event.Meta)

	if errText, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errText)
		span.RecordError(fmt.Errorf("%s", errText))
	}
}

// Flush forces export of all pending spans.
//
// Call before shutdown so buffered spans reach the backend. Respects context
// cancellation and deadlines. A provider without flush support (e.g. the noop
// provider) is a no-op.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}

	return nil
}

// addMetaAttributes converts event metadata to span attributes.
//
// Well-known keys map to namespaced attribute names; everything else keeps
// its metadata key.
func (o *OTelEmitter) addMetaAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	for key, value := range meta {
		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "surveyflow.llm.tokens_in"
		case "tokens_out":
			attrKey = "surveyflow.llm.tokens_out"
		case "cost_usd":
			attrKey = "surveyflow.llm.cost_usd"
		case "model":
			attrKey = "surveyflow.llm.model"
		case "latency_ms":
			attrKey = "surveyflow.step.latency_ms"
		case "artifact":
			attrKey = "surveyflow.artifact"
		case "attempt":
			attrKey = "surveyflow.attempt"
		case "decision":
			attrKey = "surveyflow.review.decision"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
