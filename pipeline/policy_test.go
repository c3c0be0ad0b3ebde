package pipeline

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{
			name:   "default policy is valid",
			policy: *DefaultRetryPolicy(),
		},
		{
			name:   "single attempt",
			policy: RetryPolicy{MaxAttempts: 1},
		},
		{
			name:    "zero attempts",
			policy:  RetryPolicy{MaxAttempts: 0},
			wantErr: true,
		},
		{
			name:    "negative attempts",
			policy:  RetryPolicy{MaxAttempts: -1},
			wantErr: true,
		},
		{
			name:    "max delay below base delay",
			policy:  RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Millisecond},
			wantErr: true,
		},
		{
			name:   "zero max delay means uncapped",
			policy: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRetryPolicy) {
					t.Errorf("Validate() = %v, want ErrInvalidRetryPolicy", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", p.BaseDelay)
	}
	if p.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.MaxDelay)
	}
	if p.Retryable != nil {
		t.Error("default policy should defer to IsRetryable")
	}
}

func TestRetryPolicy_Retryable(t *testing.T) {
	transient := NewExternalServiceError("model", "chat", true, errors.New("timeout"))
	terminal := NewExternalServiceError("model", "chat", false, errors.New("bad key"))

	t.Run("defaults to IsRetryable", func(t *testing.T) {
		p := DefaultRetryPolicy()
		if !p.retryable(transient) {
			t.Error("retryable external error not retried")
		}
		if p.retryable(terminal) {
			t.Error("non-retryable external error retried")
		}
		if p.retryable(errors.New("plain")) {
			t.Error("plain error retried")
		}
	})

	t.Run("custom predicate wins", func(t *testing.T) {
		p := &RetryPolicy{
			MaxAttempts: 2,
			Retryable:   func(err error) bool { return err.Error() == "flaky" },
		}
		if !p.retryable(errors.New("flaky")) {
			t.Error("custom predicate not consulted")
		}
		if p.retryable(transient) {
			t.Error("custom predicate should replace IsRetryable, not extend it")
		}
	})
}

func TestComputeBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	t.Run("zero base yields zero delay", func(t *testing.T) {
		if d := computeBackoff(0, 0, time.Minute, rng); d != 0 {
			t.Errorf("computeBackoff(base=0) = %v, want 0", d)
		}
		if d := computeBackoff(3, -time.Second, time.Minute, rng); d != 0 {
			t.Errorf("computeBackoff(base<0) = %v, want 0", d)
		}
	})

	t.Run("grows exponentially with jitter below base", func(t *testing.T) {
		base := 100 * time.Millisecond
		for attempt := 0; attempt < 4; attempt++ {
			exp := base * (1 << attempt)
			d := computeBackoff(attempt, base, 0, rng)
			if d < exp || d >= exp+base {
				t.Errorf("attempt %d: delay = %v, want [%v, %v)", attempt, d, exp, exp+base)
			}
		}
	})

	t.Run("max delay caps the exponential component", func(t *testing.T) {
		base := 100 * time.Millisecond
		ceiling := 250 * time.Millisecond
		d := computeBackoff(5, base, ceiling, rng)
		if d < ceiling || d >= ceiling+base {
			t.Errorf("capped delay = %v, want [%v, %v)", d, ceiling, ceiling+base)
		}
	})

	t.Run("nil rng falls back to the global source", func(t *testing.T) {
		base := 50 * time.Millisecond
		d := computeBackoff(0, base, 0, nil)
		if d < base || d >= 2*base {
			t.Errorf("delay = %v, want [%v, %v)", d, base, 2*base)
		}
	})
}
