package acquire

import (
	"context"
	"time"
)

// RetryPolicy is the one retry-with-backoff utility used by the orchestrator
// and by strategies that talk to flaky endpoints. Delays start at BaseDelay
// and double each attempt, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep overrides how delays are performed. Tests inject a recorder here;
	// nil means a context-aware timer.
	Sleep func(context.Context, time.Duration)
}

// DefaultRetryPolicy matches the orchestrator's budget: up to 3 attempts per
// strategy, starting at 1s and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second}
}

// Do invokes fn until it returns a non-transient outcome or the attempt
// budget is exhausted. The final transient outcome is returned as-is so the
// caller can advance to the next strategy.
func (p RetryPolicy) Do(ctx context.Context, fn func() Outcome) Outcome {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var out Outcome
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		out = fn()
		if out.Kind != OutcomeTransient || attempt >= attempts {
			return out
		}

		if !p.sleep(ctx, delay) {
			return out
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) bool {
	if p.Sleep != nil {
		p.Sleep(ctx, d)
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
