package emit

// Standard event messages emitted by the engine. Emitters may switch on these
// to drive per-event handling; handlers are free to emit their own messages.
const (
	MsgRunStarted    = "run_started"
	MsgRunResumed    = "run_resumed"
	MsgRunCompleted  = "run_completed"
	MsgRunSuspended  = "run_suspended"
	MsgRunFailed     = "run_failed"
	MsgStepCompleted = "step_completed"
	MsgStepRetrying  = "step_retrying"
)

// Event represents an observability event emitted during pipeline execution.
//
// Events provide insight into run behavior: step completions, suspensions and
// resumptions, retries, and failures. They are emitted to an Emitter which can
// log them, convert them to spans, or buffer them for inspection.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Seq is the checkpoint sequence number the event belongs to.
	// Zero for run-level events emitted before the first checkpoint.
	Seq int

	// StepID identifies the step involved. Empty for run-level events.
	StepID string

	// Msg is a short machine-matchable description, usually one of the Msg
	// constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": step execution duration in milliseconds
	//   - "error": error details
	//   - "retryable": whether an error can be retried
	//   - "attempt": retry attempt number
	//   - "artifact": artifact under review
	//   - "decision": review decision outcome
	//   - "warnings": statistical warnings attached to an artifact
	Meta map[string]interface{}
}
