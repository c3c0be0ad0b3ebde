package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Loop describes one generate/validate/review cycle over a single artifact.
//
// RegisterLoop expands a Loop into three consecutive steps:
//
//	generate -> validate -> review
//
// with the routing that makes the cycle self-correcting:
//   - validate routes back to generate while checks fail and the attempt
//     budget remains, carrying the validation errors as feedback
//   - once the budget is spent, validate routes to review anyway and the
//     artifact is marked Forced so the reviewer sees it never passed
//   - review suspends the run for a decision; approval continues to Next,
//     rejection routes back to generate with the reviewer's feedback
//
// Validation-driven regeneration counts against MaxAttempts; human
// rejections do not, so a reviewer can send an artifact back any number of
// times.
//
// Type parameter S is the workflow state type.
type Loop[S any] struct {
	// Artifact names the artifact this loop produces, e.g. "recoding".
	Artifact string

	// GenerateID, ValidateID, ReviewID are the step ids to register.
	GenerateID string
	ValidateID string
	ReviewID   string

	// Next is the step id to continue with after approval. Empty advances
	// linearly past the review step.
	Next string

	// MaxAttempts bounds validation-driven regeneration. Zero sends the
	// first failing artifact straight to forced review.
	MaxAttempts int

	// AutoApprove approves the artifact without prompting. The cycle still
	// records the approval, with no reviewer decision attached.
	AutoApprove bool

	// Generate produces the artifact. On regeneration the cycle's Feedback
	// and FeedbackKind say what to repair and who asked.
	Generate HandlerFunc[S]

	// Validate runs deterministic checks against the generated artifact.
	Validate func(ctx context.Context, state S) ValidationResult

	// Describe renders the artifact for the review prompt.
	Describe func(state S) string

	// Cycle reads the artifact's review cycle from state; SetCycle writes
	// it back. They give the loop its window into S.
	Cycle    func(state S) ReviewCycle
	SetCycle func(state S, c ReviewCycle) S

	// Warn, when set, appends a warning to the state's journal. The review
	// wrapper calls it once per artifact, at the moment the attempt budget
	// is spent and the still-failing artifact is forced through to review.
	Warn func(state S, message string) S
}

// RegisterLoop registers the loop's three steps on the registry, in
// generate, validate, review order.
func RegisterLoop[S any](reg *Registry[S], l Loop[S]) error {
	if err := l.check(); err != nil {
		return err
	}

	steps := []Step[S]{
		{ID: l.GenerateID, Role: RoleGenerate, Run: l.runGenerate},
		{ID: l.ValidateID, Role: RoleValidate, Run: l.runValidate, Route: l.routeAfterValidate},
		{ID: l.ReviewID, Role: RoleReview, Run: l.runReview, Route: l.routeAfterReview, ApplyDecision: l.applyDecision},
	}
	for _, s := range steps {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func (l Loop[S]) check() error {
	if l.Artifact == "" {
		return &EngineError{Message: "loop artifact cannot be empty"}
	}
	if l.GenerateID == "" || l.ValidateID == "" || l.ReviewID == "" {
		return &EngineError{Message: "loop step ids cannot be empty: " + l.Artifact}
	}
	if l.Generate == nil {
		return &EngineError{Message: "loop needs a Generate handler: " + l.Artifact}
	}
	if l.Validate == nil {
		return &EngineError{Message: "loop needs a Validate func: " + l.Artifact}
	}
	if l.Cycle == nil || l.SetCycle == nil {
		return &EngineError{Message: "loop needs Cycle and SetCycle accessors: " + l.Artifact}
	}
	if l.MaxAttempts < 0 {
		return &EngineError{Message: "loop MaxAttempts cannot be negative: " + l.Artifact}
	}
	return nil
}

// runGenerate counts the attempt when regeneration was driven by failed
// validation, then delegates to the Generate handler.
func (l Loop[S]) runGenerate(ctx context.Context, state S) Result[S] {
	c := l.Cycle(state)
	if c.FeedbackKind == FeedbackValidation {
		c.Attempt++
		state = l.SetCycle(state, c)
	}
	return l.Generate(ctx, state)
}

// runValidate records the validation result and prepares feedback for the
// generator when checks fail.
func (l Loop[S]) runValidate(ctx context.Context, state S) Result[S] {
	res := l.Validate(ctx, state)

	c := l.Cycle(state)
	c.Validation = &res
	if res.Passed {
		c.Feedback = ""
		c.FeedbackKind = FeedbackNone
	} else {
		c.Feedback = feedbackText(res)
		c.FeedbackKind = FeedbackValidation
	}
	return Result[S]{State: l.SetCycle(state, c)}
}

// routeAfterValidate loops back to generate while checks fail and budget
// remains; otherwise the artifact goes to review.
func (l Loop[S]) routeAfterValidate(state S) string {
	c := l.Cycle(state)
	if c.Validation != nil && !c.Validation.Passed && c.Attempt < l.MaxAttempts {
		return l.GenerateID
	}
	return l.ReviewID
}

// runReview marks exhausted artifacts as forced, then either auto-approves
// or renders the prompt that suspends the run.
func (l Loop[S]) runReview(ctx context.Context, state S) Result[S] {
	c := l.Cycle(state)
	if c.Validation != nil && !c.Validation.Passed && !c.Forced {
		c.Forced = true
		state = l.SetCycle(state, c)
		if l.Warn != nil {
			state = l.Warn(state, fmt.Sprintf(
				"%s proceeded to review without passing validation after %d regeneration attempts",
				l.Artifact, c.Attempt))
		}
	}

	if l.AutoApprove {
		return Result[S]{State: l.autoApprove(state)}
	}

	return Result[S]{
		State:  state,
		Prompt: l.renderPrompt(state, c),
	}
}

// routeAfterReview continues past the loop once approved; a rejection goes
// back to generate.
func (l Loop[S]) routeAfterReview(state S) string {
	if l.Cycle(state).Approved {
		return l.Next
	}
	return l.GenerateID
}

// applyDecision folds a reviewer's decision into the cycle. Approval closes
// the loop and resets the budget; rejection carries the feedback back to the
// generator without touching the attempt count.
func (l Loop[S]) applyDecision(state S, d ReviewDecision) S {
	c := l.Cycle(state)
	decision := d
	c.Decision = &decision

	switch d.Outcome {
	case DecisionApproved:
		c.Approved = true
		c.Attempt = 0
		c.Feedback = ""
		c.FeedbackKind = FeedbackNone
	case DecisionRejected:
		c.Approved = false
		c.Feedback = d.Feedback
		c.FeedbackKind = FeedbackHuman
	}

	return l.SetCycle(state, c)
}

// autoApprove closes the loop by configuration, with no reviewer decision
// recorded.
func (l Loop[S]) autoApprove(state S) S {
	c := l.Cycle(state)
	c.Approved = true
	c.Attempt = 0
	c.Feedback = ""
	c.FeedbackKind = FeedbackNone
	return l.SetCycle(state, c)
}

// renderPrompt builds the review prompt from the artifact description and
// the latest validation report.
func (l Loop[S]) renderPrompt(state S, c ReviewCycle) *ReviewPrompt {
	var b strings.Builder

	if l.Describe != nil {
		b.WriteString(l.Describe(state))
		b.WriteString("\n\n")
	}

	switch {
	case c.Validation == nil:
		b.WriteString("No validation was run for this artifact.\n")
	case c.Validation.Passed:
		b.WriteString("All validation checks passed.\n")
	default:
		b.WriteString("Validation errors:\n")
		for _, e := range c.Validation.Errors {
			b.WriteString("  - ")
			b.WriteString(e)
			b.WriteByte('\n')
		}
	}
	if c.Validation != nil && len(c.Validation.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range c.Validation.Warnings {
			b.WriteString("  - ")
			b.WriteString(w)
			b.WriteByte('\n')
		}
	}

	title := l.Artifact + " review"
	if c.Forced {
		title += " (validation incomplete)"
		fmt.Fprintf(&b, "\nThe %s still fails validation after %d regeneration attempts. Approve to continue anyway, or reject with feedback.\n",
			l.Artifact, c.Attempt)
	}

	return &ReviewPrompt{
		Artifact: l.Artifact,
		Title:    title,
		Body:     b.String(),
		Options:  []string{"approve", "reject <feedback>"},
	}
}

// feedbackText flattens validation errors into the feedback handed to the
// generator.
func feedbackText(res ValidationResult) string {
	var b strings.Builder
	for i, e := range res.Errors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(e)
	}
	return b.String()
}
