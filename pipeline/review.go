package pipeline

// DecisionOutcome is the reviewer's verdict on an artifact.
type DecisionOutcome string

const (
	DecisionApproved DecisionOutcome = "approved"
	DecisionRejected DecisionOutcome = "rejected"
)

// ReviewDecision is a human reviewer's response to a ReviewPrompt.
type ReviewDecision struct {
	Outcome  DecisionOutcome `json:"outcome"`
	Feedback string          `json:"feedback,omitempty"`
}

// Approve returns an approving decision.
func Approve() ReviewDecision {
	return ReviewDecision{Outcome: DecisionApproved}
}

// Reject returns a rejecting decision carrying reviewer feedback for the next
// generation attempt.
func Reject(feedback string) ReviewDecision {
	return ReviewDecision{Outcome: DecisionRejected, Feedback: feedback}
}

// FeedbackKind distinguishes where the feedback held in a ReviewCycle came
// from. Validation feedback counts against the bounded retry budget; human
// feedback does not.
type FeedbackKind string

const (
	FeedbackNone       FeedbackKind = ""
	FeedbackValidation FeedbackKind = "validation"
	FeedbackHuman      FeedbackKind = "human"
)

// ValidationResult is the outcome of a validate step's deterministic checks.
// Errors describe structural defects the generator is asked to repair;
// Warnings are advisory and never block progress on their own.
type ValidationResult struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Checks   []string `json:"checks,omitempty"`
}

// ReviewCycle tracks one generate/validate/review loop through its lifetime.
// The workflow state holds one ReviewCycle per reviewed artifact.
type ReviewCycle struct {
	// Attempt counts generation attempts driven by failed validation.
	// Regeneration after a human rejection does not increment it.
	Attempt int `json:"attempt"`

	// Validation is the most recent validate result for this artifact, nil
	// before the first validation.
	Validation *ValidationResult `json:"validation,omitempty"`

	// Feedback is carried to the next generation attempt. FeedbackKind says
	// whether it came from failed validation or a human rejection.
	Feedback     string       `json:"feedback,omitempty"`
	FeedbackKind FeedbackKind `json:"feedback_kind,omitempty"`

	// Approved is set once a reviewer (or auto-approval) accepts the
	// artifact. The loop never re-enters once this is true.
	Approved bool `json:"approved"`

	// Forced marks an artifact that reached review despite failing
	// validation because the attempt budget ran out. The review prompt
	// surfaces this to the reviewer.
	Forced bool `json:"forced"`

	// Decision is the recorded reviewer decision, nil when configuration
	// auto-approved the artifact.
	Decision *ReviewDecision `json:"decision,omitempty"`
}

// Exhausted reports whether the attempt budget is spent.
func (c ReviewCycle) Exhausted(maxAttempts int) bool {
	return c.Attempt >= maxAttempts
}
