package pipeline

import (
	"context"
	"sync"

	"github.com/crosstab-io/surveyflow/pipeline/store"
)

// Interrupts coordinates in-process review decisions between a running engine
// and an interactive front end.
//
// Without an Interrupts controller, a review suspension ends Run and the
// decision arrives later via Resume, possibly from another process. With one
// attached, the engine blocks inside Run until the front end resolves the
// review, keeping a single interactive session flowing.
//
// The suspension is checkpointed before the engine waits, so an interrupted
// wait (Ctrl-C, timeout) leaves the run suspended and resumable.
//
// Typical front end loop:
//
//	for {
//	    review, err := interrupts.Next(ctx)
//	    if err != nil {
//	        return
//	    }
//	    decision := promptUser(review)
//	    interrupts.Resolve(review.Token, decision)
//	}
type Interrupts struct {
	mu      sync.Mutex
	waiting map[string]chan ReviewDecision // token -> reply channel
	reviews chan store.PendingReview
}

// NewInterrupts creates an Interrupts controller.
func NewInterrupts() *Interrupts {
	return &Interrupts{
		waiting: make(map[string]chan ReviewDecision),
		reviews: make(chan store.PendingReview),
	}
}

// Wait blocks until the review is resolved or the context is done.
//
// Called by the engine after persisting a suspension. The review is offered
// to Next and then held until Resolve delivers a decision for its token.
func (i *Interrupts) Wait(ctx context.Context, review store.PendingReview) (ReviewDecision, error) {
	reply := make(chan ReviewDecision, 1)

	i.mu.Lock()
	i.waiting[review.Token] = reply
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		delete(i.waiting, review.Token)
		i.mu.Unlock()
	}()

	var zero ReviewDecision

	// Hand the review to the front end.
	select {
	case i.reviews <- review:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case decision := <-reply:
		return decision, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Next blocks until the engine suspends on a review, returning the pending
// review to present. Returns the context error when ctx is done first.
func (i *Interrupts) Next(ctx context.Context) (store.PendingReview, error) {
	select {
	case review := <-i.reviews:
		return review, nil
	case <-ctx.Done():
		var zero store.PendingReview
		return zero, ctx.Err()
	}
}

// Resolve delivers a decision for the review identified by token.
//
// Returns ErrNoPendingReview when no engine is waiting on that token, which
// happens when the wait was cancelled or the decision was already delivered.
func (i *Interrupts) Resolve(token string, decision ReviewDecision) error {
	i.mu.Lock()
	reply, ok := i.waiting[token]
	if ok {
		delete(i.waiting, token)
	}
	i.mu.Unlock()

	if !ok {
		return ErrNoPendingReview
	}

	reply <- decision
	return nil
}

// Pending reports the tokens of reviews currently blocking an engine.
func (i *Interrupts) Pending() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	tokens := make([]string, 0, len(i.waiting))
	for token := range i.waiting {
		tokens = append(tokens, token)
	}
	return tokens
}
