package pipeline

import "context"

// Role classifies a step within the pipeline. The set is closed: every step is
// exactly one of these, and routing logic can switch exhaustively over them.
type Role int

const (
	// RolePlain is a deterministic computation step.
	RolePlain Role = iota

	// RoleGenerate produces a candidate artifact, usually via the generative
	// model, optionally incorporating feedback from a prior review or failed
	// validation.
	RoleGenerate

	// RoleValidate runs deterministic structural checks against the most
	// recently generated artifact and records a ValidationResult.
	RoleValidate

	// RoleReview presents an artifact and its ValidationResult to a human and
	// awaits a ReviewDecision.
	RoleReview
)

func (r Role) String() string {
	switch r {
	case RolePlain:
		return "plain"
	case RoleGenerate:
		return "generate"
	case RoleValidate:
		return "validate"
	case RoleReview:
		return "review"
	default:
		return "unknown"
	}
}

// End is the terminal routing target. A router returning End completes the run.
const End = "end"

// HandlerFunc is the executable unit behind a step. It must be a function of
// its input state alone: all effects flow through the returned Result, and the
// input state value must not be retained or mutated after return.
//
// Type parameter S is the workflow state type.
type HandlerFunc[S any] func(ctx context.Context, state S) Result[S]

// Result is what a step execution produces.
//
// Exactly one of the following shapes is meaningful:
//   - State set, Prompt nil, Err nil: the step completed; State is the
//     successor workflow state.
//   - State set, Prompt non-nil: the step completed by rendering a review
//     prompt; the engine suspends the run until a ReviewDecision arrives.
//   - Err non-nil: the step failed. ExternalServiceError may be retried by the
//     engine; anything else is fatal.
type Result[S any] struct {
	State  S
	Prompt *ReviewPrompt
	Err    error
}

// Router selects the next step id from the current state. Routers must be pure
// and deterministic: the same state always yields the same step id. This is
// what makes a run resumable from its latest checkpoint alone.
//
// Returning "" defers to the registry's linear successor; returning End
// terminates the run.
type Router[S any] func(state S) string

// Step is one entry in the ordered step table.
type Step[S any] struct {
	// ID uniquely identifies the step, e.g. "generate_recoding".
	ID string

	// Role classifies the step.
	Role Role

	// Run executes the step.
	Run HandlerFunc[S]

	// Route picks the successor after Run completes. Nil means linear
	// advance to the next registered step.
	Route Router[S]

	// ApplyDecision folds a human ReviewDecision into state. Only review
	// steps set this; the engine calls it when a suspended run resumes.
	ApplyDecision func(state S, decision ReviewDecision) S
}

// ReviewPrompt is the rendered artifact-plus-validation presented to a human
// reviewer when a review step suspends the run.
type ReviewPrompt struct {
	// Artifact names the artifact under review, e.g. "recoding".
	Artifact string `json:"artifact"`

	// Title is a one-line summary for the reviewer.
	Title string `json:"title"`

	// Body is the rendered artifact and validation report.
	Body string `json:"body"`

	// Options lists the accepted responses, e.g. "approve", "reject <feedback>".
	Options []string `json:"options,omitempty"`
}
