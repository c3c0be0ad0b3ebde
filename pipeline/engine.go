package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crosstab-io/surveyflow/pipeline/emit"
	"github.com/crosstab-io/surveyflow/pipeline/store"
)

// Engine executes a pipeline's step table with checkpointing support.
//
// The Engine is the core runtime that:
//   - Executes steps strictly sequentially in registry order
//   - Routes between steps via pure routers
//   - Appends one checkpoint record per completed step
//   - Suspends runs for human review and resumes them, hours or days later
//   - Retries transient external failures with backoff, then suspends
//   - Converts fatal errors and cancellation into failed records that
//     preserve the full checkpoint history
//   - Emits observability events via the emitter
//
// Type parameter S is the workflow state type shared across all steps.
//
// Example:
//
//	reg := pipeline.NewRegistry[MyState]()
//	reg.Register(pipeline.Step[MyState]{ID: "process", Run: processStep})
//
//	eng := pipeline.New(reg, store.NewMemStore[MyState](), emit.NewLogEmitter(nil, false), pipeline.Options{})
//	outcome, err := eng.Run(ctx, "run-001", MyState{})
type Engine[S any] struct {
	registry *Registry[S]
	store    store.Store[S]
	emitter  emit.Emitter
	opts     Options
	retry    *RetryPolicy
}

// Options configures Engine execution behavior.
//
// Zero values are valid; the Engine applies defaults where noted.
type Options struct {
	// MaxSteps limits the number of step executions in a single Run or
	// Resume call, guarding against routing loops. If 0, no limit is
	// enforced.
	MaxSteps int

	// Retry configures automatic retry of transient external failures.
	// Nil applies DefaultRetryPolicy.
	Retry *RetryPolicy

	// DisableReviews auto-approves every review step. Runs execute
	// end-to-end without suspending; each review still contributes a
	// checkpoint record with the approval folded in.
	DisableReviews bool

	// Interrupts, when set, keeps review suspensions inside Run: the engine
	// blocks until the controller resolves the decision instead of
	// returning a suspended outcome.
	Interrupts *Interrupts

	// Metrics, when set, receives Prometheus metric updates.
	Metrics *PrometheusMetrics
}

// Outcome reports how a Run or Resume call left the run.
//
// Status is the run's latest persisted status:
//   - StatusCompleted: the final step finished; State is the final state.
//   - StatusSuspended: the run checkpointed and stopped. Pending is set when
//     a review awaits a decision; Halt is set when a retry budget ran out.
//     Either way the run resumes via Resume.
//   - StatusFailed: the run stopped on a fatal error or cancellation; Halt
//     records the cause. Cancelled runs carry a retryable Halt.
type Outcome[S any] struct {
	RunID   string
	Status  store.RunStatus
	State   S
	Seq     int
	StepID  string
	Pending *store.PendingReview
	Halt    *store.Halt
}

// New creates a new Engine.
//
// Parameters:
//   - registry: the ordered step table (sealed on first Run)
//   - st: persistence backend for checkpoint records (required)
//   - emitter: observability event receiver (nil for none)
//   - opts: execution configuration
func New[S any](registry *Registry[S], st store.Store[S], emitter emit.Emitter, opts Options) *Engine[S] {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Engine[S]{
		registry: registry,
		store:    st,
		emitter:  emitter,
		opts:     opts,
		retry:    retry,
	}
}

// Run starts a new run from the first registered step.
//
// Returns ErrRunExists if runID already has checkpoint history; existing runs
// continue via Resume. The returned Outcome describes how the run stopped;
// err is non-nil only for failed outcomes and infrastructure errors.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (Outcome[S], error) {
	var zero Outcome[S]

	if err := e.validate(runID); err != nil {
		return zero, err
	}

	if _, err := e.store.Latest(ctx, runID); err == nil {
		return zero, fmt.Errorf("%w: %s", ErrRunExists, runID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("failed to check run %s: %w", runID, err)
	}

	first, ok := e.registry.First()
	if !ok {
		return zero, &EngineError{Message: "registry has no steps", Code: "EMPTY_REGISTRY"}
	}

	e.emitter.Emit(emit.Event{RunID: runID, Msg: emit.MsgRunStarted})

	return e.loop(ctx, runID, first.ID, initial, 0)
}

// Resume continues a stopped run from its latest checkpoint record.
//
// The decision argument answers a pending review; pass nil when none is
// expected. Behavior by recorded status:
//
//   - Suspended with a pending review: a non-nil decision is folded into
//     state via the review step's ApplyDecision and the run continues. With
//     a nil decision the review is re-presented (through Interrupts when
//     attached, otherwise in the returned Outcome).
//   - Suspended on a retryable halt: the halted step is re-executed with a
//     fresh retry budget.
//   - Failed with a retryable halt (cancellation): the interrupted step is
//     re-executed.
//   - Running (crash recovery): execution continues at the recorded step's
//     successor; the completed step is never re-executed.
//   - Completed: ErrRunCompleted. Failed without a retryable halt:
//     ErrRunFailed.
//
// A non-nil decision for a run with no pending review fails with
// ErrNoPendingReview.
func (e *Engine[S]) Resume(ctx context.Context, runID string, decision *ReviewDecision) (Outcome[S], error) {
	var zero Outcome[S]

	if err := e.validate(runID); err != nil {
		return zero, err
	}

	rec, err := e.store.Latest(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("unknown run %s: %w", runID, err)
	}
	if errors.Is(err, store.ErrCorrupted) {
		return zero, FatalWrap("checkpoint verification failed", err)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	if decision != nil && (rec.Status != store.StatusSuspended || rec.Pending == nil) {
		return e.outcomeFromRecord(rec), fmt.Errorf("%w: %s", ErrNoPendingReview, runID)
	}

	switch rec.Status {
	case store.StatusCompleted:
		return e.outcomeFromRecord(rec), fmt.Errorf("%w: %s", ErrRunCompleted, runID)

	case store.StatusFailed:
		if rec.Halt == nil || !rec.Halt.Retryable {
			return e.outcomeFromRecord(rec), fmt.Errorf("%w: %s", ErrRunFailed, runID)
		}
		// The recorded step never completed; re-execute it.
		e.emitter.Emit(emit.Event{RunID: runID, Seq: rec.Seq, StepID: rec.StepID, Msg: emit.MsgRunResumed})
		return e.loop(ctx, runID, rec.StepID, rec.State, rec.Seq)

	case store.StatusSuspended:
		if rec.Pending != nil {
			return e.resumeReview(ctx, rec, decision)
		}
		if rec.Halt != nil && rec.Halt.Retryable {
			// Retry budget exhaustion; re-execute with a fresh budget.
			e.emitter.Emit(emit.Event{RunID: runID, Seq: rec.Seq, StepID: rec.StepID, Msg: emit.MsgRunResumed})
			return e.loop(ctx, runID, rec.StepID, rec.State, rec.Seq)
		}
		return zero, &EngineError{
			Message: "suspended record carries neither pending review nor retryable halt: " + runID,
			Code:    "MALFORMED_RECORD",
		}

	case store.StatusRunning:
		// Crash recovery. The recorded step completed, so continue at its
		// successor, never re-executing it.
		step, ok := e.registry.Lookup(rec.StepID)
		if !ok {
			return zero, FatalWrap("recorded step is not registered: "+rec.StepID, ErrUnknownStep)
		}
		e.emitter.Emit(emit.Event{RunID: runID, Seq: rec.Seq, StepID: rec.StepID, Msg: emit.MsgRunResumed})
		next := e.routeFrom(step, rec.State)
		if next == End {
			return e.complete(ctx, rec.RunID, step.ID, rec.State, rec.Seq)
		}
		return e.loop(ctx, runID, next, rec.State, rec.Seq)

	default:
		return zero, &EngineError{
			Message: "record has unknown status: " + string(rec.Status),
			Code:    "MALFORMED_RECORD",
		}
	}
}

// resumeReview handles Resume against a record suspended on a review.
func (e *Engine[S]) resumeReview(ctx context.Context, rec store.Record[S], decision *ReviewDecision) (Outcome[S], error) {
	var zero Outcome[S]

	step, ok := e.registry.Lookup(rec.Pending.StepID)
	if !ok {
		return zero, FatalWrap("pending review step is not registered: "+rec.Pending.StepID, ErrUnknownStep)
	}

	if decision == nil {
		if e.opts.Interrupts == nil {
			// Nothing to apply; re-present the pending review.
			return e.outcomeFromRecord(rec), nil
		}
		e.emitter.Emit(emit.Event{RunID: rec.RunID, Seq: rec.Seq, StepID: step.ID, Msg: emit.MsgRunResumed})
		d, err := e.opts.Interrupts.Wait(ctx, *rec.Pending)
		if err != nil {
			// Wait interrupted; the suspension record stands.
			return e.outcomeFromRecord(rec), nil
		}
		decision = &d
	} else {
		e.emitter.Emit(emit.Event{RunID: rec.RunID, Seq: rec.Seq, StepID: step.ID, Msg: emit.MsgRunResumed})
	}

	return e.applyDecision(ctx, rec.RunID, step, rec.State, rec.Seq, rec.Pending, *decision)
}

// applyDecision folds a review decision into state and continues the run.
// The decision becomes durable with the next appended record.
func (e *Engine[S]) applyDecision(ctx context.Context, runID string, step Step[S], state S, lastSeq int, pending *store.PendingReview, decision ReviewDecision) (Outcome[S], error) {
	newState := step.ApplyDecision(state, decision)

	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementReviews(pending.Artifact, string(decision.Outcome))
	}
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Seq:    lastSeq,
		StepID: step.ID,
		Msg:    emit.MsgStepCompleted,
		Meta: map[string]interface{}{
			"artifact": pending.Artifact,
			"decision": string(decision.Outcome),
		},
	})

	next := e.routeFrom(step, newState)
	if next == End {
		return e.complete(ctx, runID, step.ID, newState, lastSeq)
	}
	return e.loop(ctx, runID, next, newState, lastSeq)
}

// loop executes steps starting at stepID until the run completes, suspends,
// or fails. lastSeq is the highest checkpoint sequence already persisted.
func (e *Engine[S]) loop(ctx context.Context, runID, stepID string, state S, lastSeq int) (Outcome[S], error) {
	var zero Outcome[S]
	executed := 0

	for {
		executed++
		if e.opts.MaxSteps > 0 && executed > e.opts.MaxSteps {
			return e.fail(ctx, runID, stepID, state, lastSeq,
				Fatalf("run exceeded MaxSteps limit (%d)", e.opts.MaxSteps))
		}

		if ctx.Err() != nil {
			return e.cancel(ctx, runID, stepID, state, lastSeq)
		}

		step, ok := e.registry.Lookup(stepID)
		if !ok {
			return e.fail(ctx, runID, stepID, state, lastSeq,
				FatalWrap("no step registered for id "+stepID, ErrUnknownStep))
		}

		result, outcome, done, err := e.execute(ctx, runID, step, state, lastSeq)
		if done {
			return outcome, err
		}

		// Review suspension.
		if result.Prompt != nil {
			if e.opts.DisableReviews {
				decision := Approve()
				newState := step.ApplyDecision(result.State, decision)
				if e.opts.Metrics != nil {
					e.opts.Metrics.IncrementReviews(result.Prompt.Artifact, "auto_approved")
				}
				result.State = newState
				result.Prompt = nil
			} else {
				outcome, cont, err := e.suspendForReview(ctx, runID, step, result, lastSeq)
				if !cont.resumed {
					return outcome, err
				}
				lastSeq = cont.lastSeq
				state = cont.state
				stepID = cont.next
				if stepID == End {
					return e.complete(ctx, runID, step.ID, state, lastSeq)
				}
				continue
			}
		}

		// Route before saving so the final step's record carries the
		// completed status.
		next := e.routeFrom(step, result.State)
		status := store.StatusRunning
		if next == End {
			status = store.StatusCompleted
		}

		rec := store.Record[S]{
			RunID:   runID,
			Seq:     lastSeq + 1,
			StepID:  step.ID,
			Status:  status,
			State:   result.State,
			SavedAt: time.Now().UTC(),
		}
		if err := e.store.Append(ctx, rec); err != nil {
			return zero, &EngineError{
				Message: "failed to save checkpoint: " + err.Error(),
				Code:    "STORE_ERROR",
			}
		}
		lastSeq++

		e.emitter.Emit(emit.Event{
			RunID:  runID,
			Seq:    lastSeq,
			StepID: step.ID,
			Msg:    emit.MsgStepCompleted,
		})

		if next == End {
			if e.opts.Metrics != nil {
				e.opts.Metrics.IncrementRuns("completed")
			}
			e.emitter.Emit(emit.Event{RunID: runID, Seq: lastSeq, StepID: step.ID, Msg: emit.MsgRunCompleted})
			return Outcome[S]{
				RunID:  runID,
				Status: store.StatusCompleted,
				State:  result.State,
				Seq:    lastSeq,
				StepID: step.ID,
			}, nil
		}

		state = result.State
		stepID = next
	}
}

// execute runs one step with retry handling. When done is true the run
// stopped and outcome/err are final; otherwise result carries the step's
// output.
func (e *Engine[S]) execute(ctx context.Context, runID string, step Step[S], state S, lastSeq int) (Result[S], Outcome[S], bool, error) {
	var zeroResult Result[S]

	for attempt := 0; ; attempt++ {
		stateCopy, err := deepCopy(state)
		if err != nil {
			outcome, ferr := e.fail(ctx, runID, step.ID, state, lastSeq,
				FatalWrap("state is not serializable", err))
			return zeroResult, outcome, true, ferr
		}

		start := time.Now()
		result := step.Run(ctx, stateCopy)
		latency := time.Since(start)

		if result.Err == nil {
			if e.opts.Metrics != nil {
				e.opts.Metrics.RecordStepLatency(step.ID, latency, "success")
			}
			return result, Outcome[S]{}, false, nil
		}

		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordStepLatency(step.ID, latency, "error")
		}

		// A cancelled context takes precedence over the step's own error.
		if ctx.Err() != nil {
			outcome, cerr := e.cancel(ctx, runID, step.ID, state, lastSeq)
			return zeroResult, outcome, true, cerr
		}

		if e.retry.retryable(result.Err) {
			if attempt+1 < e.retry.MaxAttempts {
				if e.opts.Metrics != nil {
					e.opts.Metrics.IncrementRetries(step.ID, "external_service")
				}
				e.emitter.Emit(emit.Event{
					RunID:  runID,
					Seq:    lastSeq,
					StepID: step.ID,
					Msg:    emit.MsgStepRetrying,
					Meta: map[string]interface{}{
						"attempt": attempt + 1,
						"error":   result.Err.Error(),
					},
				})
				delay := computeBackoff(attempt, e.retry.BaseDelay, e.retry.MaxDelay, nil)
				if err := sleepCtx(ctx, delay); err != nil {
					outcome, cerr := e.cancel(ctx, runID, step.ID, state, lastSeq)
					return zeroResult, outcome, true, cerr
				}
				continue
			}

			// Budget exhausted; suspend with the pre-step state so a
			// later resume re-executes this step.
			outcome, serr := e.suspendOnHalt(ctx, runID, step.ID, state, lastSeq, result.Err)
			return zeroResult, outcome, true, serr
		}

		// A permanent provider failure (bad credentials, exhausted quota)
		// leaves the step un-executed. Suspend instead of failing; the run
		// stays resumable once the credential or quota is fixed.
		var extErr *ExternalServiceError
		if errors.As(result.Err, &extErr) {
			outcome, serr := e.suspendOnHalt(ctx, runID, step.ID, state, lastSeq, result.Err)
			return zeroResult, outcome, true, serr
		}

		outcome, ferr := e.fail(ctx, runID, step.ID, state, lastSeq, result.Err)
		return zeroResult, outcome, true, ferr
	}
}

// suspendContinuation reports how an interactive review wait concluded.
type suspendContinuation[S any] struct {
	resumed bool
	lastSeq int
	state   S
	next    string
}

// suspendForReview persists a review suspension and, when an Interrupts
// controller is attached, blocks for the decision and resumes inline.
func (e *Engine[S]) suspendForReview(ctx context.Context, runID string, step Step[S], result Result[S], lastSeq int) (Outcome[S], suspendContinuation[S], error) {
	var zero Outcome[S]
	var cont suspendContinuation[S]

	pending := &store.PendingReview{
		Token:     uuid.NewString(),
		StepID:    step.ID,
		Artifact:  result.Prompt.Artifact,
		Title:     result.Prompt.Title,
		Body:      result.Prompt.Body,
		Options:   result.Prompt.Options,
		CreatedAt: time.Now().UTC(),
	}

	rec := store.Record[S]{
		RunID:   runID,
		Seq:     lastSeq + 1,
		StepID:  step.ID,
		Status:  store.StatusSuspended,
		State:   result.State,
		Pending: pending,
		SavedAt: time.Now().UTC(),
	}
	if err := e.store.Append(ctx, rec); err != nil {
		return zero, cont, &EngineError{
			Message: "failed to save suspension: " + err.Error(),
			Code:    "STORE_ERROR",
		}
	}
	lastSeq++

	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Seq:    lastSeq,
		StepID: step.ID,
		Msg:    emit.MsgRunSuspended,
		Meta: map[string]interface{}{
			"artifact": pending.Artifact,
		},
	})

	suspended := Outcome[S]{
		RunID:   runID,
		Status:  store.StatusSuspended,
		State:   result.State,
		Seq:     lastSeq,
		StepID:  step.ID,
		Pending: pending,
	}

	if e.opts.Interrupts == nil {
		if e.opts.Metrics != nil {
			e.opts.Metrics.IncrementRuns("suspended")
		}
		return suspended, cont, nil
	}

	decision, err := e.opts.Interrupts.Wait(ctx, *pending)
	if err != nil {
		// Wait interrupted; the suspension record stands and the run
		// resumes later.
		if e.opts.Metrics != nil {
			e.opts.Metrics.IncrementRuns("suspended")
		}
		return suspended, cont, nil
	}

	newState := step.ApplyDecision(result.State, decision)
	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementReviews(pending.Artifact, string(decision.Outcome))
	}
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Seq:    lastSeq,
		StepID: step.ID,
		Msg:    emit.MsgRunResumed,
		Meta: map[string]interface{}{
			"artifact": pending.Artifact,
			"decision": string(decision.Outcome),
		},
	})

	cont.resumed = true
	cont.lastSeq = lastSeq
	cont.state = newState
	cont.next = e.routeFrom(step, newState)
	return zero, cont, nil
}

// suspendOnHalt persists a retryable suspension after the retry budget ran
// out. The record keeps the pre-step state so Resume re-executes the step.
func (e *Engine[S]) suspendOnHalt(ctx context.Context, runID, stepID string, state S, lastSeq int, cause error) (Outcome[S], error) {
	var zero Outcome[S]

	halt := &store.Halt{
		Reason:    "external_service",
		Message:   cause.Error(),
		Retryable: true,
	}
	rec := store.Record[S]{
		RunID:   runID,
		Seq:     lastSeq + 1,
		StepID:  stepID,
		Status:  store.StatusSuspended,
		State:   state,
		Halt:    halt,
		SavedAt: time.Now().UTC(),
	}
	if err := e.store.Append(ctx, rec); err != nil {
		return zero, &EngineError{
			Message: "failed to save suspension: " + err.Error(),
			Code:    "STORE_ERROR",
		}
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementRuns("suspended")
	}
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Seq:    rec.Seq,
		StepID: stepID,
		Msg:    emit.MsgRunSuspended,
		Meta: map[string]interface{}{
			"error":     cause.Error(),
			"retryable": true,
		},
	})

	return Outcome[S]{
		RunID:  runID,
		Status: store.StatusSuspended,
		State:  state,
		Seq:    rec.Seq,
		StepID: stepID,
		Halt:   halt,
	}, nil
}

// cancel persists a failed record for an interrupted run. The record keeps
// the pre-step state and the incomplete step's id, and its halt is retryable
// so the run can be resumed.
func (e *Engine[S]) cancel(ctx context.Context, runID, stepID string, state S, lastSeq int) (Outcome[S], error) {
	var zero Outcome[S]

	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}

	halt := &store.Halt{
		Reason:    "cancelled",
		Message:   cause.Error(),
		Retryable: true,
	}
	rec := store.Record[S]{
		RunID:   runID,
		Seq:     lastSeq + 1,
		StepID:  stepID,
		Status:  store.StatusFailed,
		State:   state,
		Halt:    halt,
		SavedAt: time.Now().UTC(),
	}
	// The run context is done; persist with a fresh context so the record
	// is not lost.
	if err := e.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		return zero, &EngineError{
			Message: "failed to save cancellation: " + err.Error(),
			Code:    "STORE_ERROR",
		}
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementRuns("failed")
	}
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Seq:    rec.Seq,
		StepID: stepID,
		Msg:    emit.MsgRunFailed,
		Meta: map[string]interface{}{
			"reason": "cancelled",
		},
	})

	return Outcome[S]{
		RunID:  runID,
		Status: store.StatusFailed,
		State:  state,
		Seq:    rec.Seq,
		StepID: stepID,
		Halt:   halt,
	}, cause
}

// fail persists a failed record for a fatal error. Prior checkpoint records
// are preserved for inspection; the run cannot be resumed.
func (e *Engine[S]) fail(ctx context.Context, runID, stepID string, state S, lastSeq int, cause error) (Outcome[S], error) {
	var zero Outcome[S]

	halt := &store.Halt{
		Reason:    "fatal",
		Message:   cause.Error(),
		Retryable: false,
	}
	rec := store.Record[S]{
		RunID:   runID,
		Seq:     lastSeq + 1,
		StepID:  stepID,
		Status:  store.StatusFailed,
		State:   state,
		Halt:    halt,
		SavedAt: time.Now().UTC(),
	}
	if err := e.store.Append(ctx, rec); err != nil {
		return zero, &EngineError{
			Message: "failed to save failure: " + err.Error(),
			Code:    "STORE_ERROR",
		}
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementRuns("failed")
	}
	e.emitter.Emit(emit.Event{
		RunID:  runID,
		Seq:    rec.Seq,
		StepID: stepID,
		Msg:    emit.MsgRunFailed,
		Meta: map[string]interface{}{
			"error": cause.Error(),
		},
	})

	return Outcome[S]{
		RunID:  runID,
		Status: store.StatusFailed,
		State:  state,
		Seq:    rec.Seq,
		StepID: stepID,
		Halt:   halt,
	}, cause
}

// complete persists a completed record for a run whose last action was a
// review approval with no successor step.
func (e *Engine[S]) complete(ctx context.Context, runID, stepID string, state S, lastSeq int) (Outcome[S], error) {
	var zero Outcome[S]

	rec := store.Record[S]{
		RunID:   runID,
		Seq:     lastSeq + 1,
		StepID:  stepID,
		Status:  store.StatusCompleted,
		State:   state,
		SavedAt: time.Now().UTC(),
	}
	if err := e.store.Append(ctx, rec); err != nil {
		return zero, &EngineError{
			Message: "failed to save checkpoint: " + err.Error(),
			Code:    "STORE_ERROR",
		}
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.IncrementRuns("completed")
	}
	e.emitter.Emit(emit.Event{RunID: runID, Seq: rec.Seq, StepID: stepID, Msg: emit.MsgRunCompleted})

	return Outcome[S]{
		RunID:  runID,
		Status: store.StatusCompleted,
		State:  state,
		Seq:    rec.Seq,
		StepID: stepID,
	}, nil
}

// routeFrom resolves the successor of a completed step: the step's router
// first, falling back to the registry's linear order.
func (e *Engine[S]) routeFrom(step Step[S], state S) string {
	if step.Route != nil {
		if to := step.Route(state); to != "" {
			return to
		}
	}
	return e.registry.Successor(step.ID)
}

// validate checks engine configuration before any execution.
func (e *Engine[S]) validate(runID string) error {
	if runID == "" {
		return &EngineError{Message: "run ID cannot be empty", Code: "MISSING_RUN_ID"}
	}
	if e.registry == nil {
		return &EngineError{Message: "registry is required", Code: "MISSING_REGISTRY"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if e.retry == nil {
		e.retry = DefaultRetryPolicy()
	}
	if err := e.retry.Validate(); err != nil {
		return err
	}
	if !e.registry.Sealed() {
		if err := e.registry.Seal(); err != nil {
			return err
		}
	}
	return nil
}

// outcomeFromRecord converts a loaded record to an Outcome.
func (e *Engine[S]) outcomeFromRecord(rec store.Record[S]) Outcome[S] {
	return Outcome[S]{
		RunID:   rec.RunID,
		Status:  rec.Status,
		State:   rec.State,
		Seq:     rec.Seq,
		StepID:  rec.StepID,
		Pending: rec.Pending,
		Halt:    rec.Halt,
	}
}

// sleepCtx waits for the duration or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EngineError represents an error from Engine configuration or persistence.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
