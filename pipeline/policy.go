package pipeline

import (
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy indicates a RetryPolicy with invalid configuration.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy defines automatic retry behavior for transient step failures.
//
// When a step fails with a retryable error, the engine waits with exponential
// backoff and re-executes the step. Once MaxAttempts is exhausted the run is
// suspended rather than failed: the checkpoint survives and the run can be
// resumed once the external service recovers.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts, including the
	// initial one. Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	// The actual delay is min(BaseDelay * 2^attempt, MaxDelay) + jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is transient. If nil, IsRetryable
	// is used, which treats retryable ExternalServiceErrors as transient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the retry configuration used when Options.Retry
// is nil: three attempts with backoff from one second capped at thirty.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Validate checks the policy configuration:
//   - MaxAttempts must be >= 1
//   - if both MaxDelay and BaseDelay are > 0, MaxDelay must be >= BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// retryable resolves the error predicate.
func (rp *RetryPolicy) retryable(err error) bool {
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return IsRetryable(err)
}

// computeBackoff calculates the delay before retrying a failed step.
//
// delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
//
// The exponential component doubles the delay with each retry, reducing load
// on a failing service. Jitter randomizes retry timing so that independent
// runs do not synchronize their retries.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}

	return delay + jitter
}
