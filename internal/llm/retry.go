package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryProvider backs off and retries requests the vendor rejected with a
// rate limit. Anything else, including unusable output, goes straight back
// to the caller: contentgen counts those against its own retry budget.
type RetryProvider struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry wraps p with rate-limit backoff. A MaxAttempts below one is
// treated as one.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &RetryProvider{inner: p, cfg: cfg}
}

func (r *RetryProvider) ModelID() string { return r.inner.ModelID() }

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		var rl *ErrRateLimit
		if err == nil || !errors.As(err, &rl) || attempt >= r.cfg.MaxAttempts {
			return resp, err
		}

		wait := r.wait(attempt, rl.RetryAfter)
		// A wait that outlives the caller's deadline only burns the
		// learner's time; report the rate limit now instead.
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return nil, err
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// wait is the pause before the next attempt. A vendor Retry-After wins;
// otherwise it grows exponentially from InitialWait, capped at MaxWait,
// with ±20% jitter.
func (r *RetryProvider) wait(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	d := float64(r.cfg.InitialWait) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	if r.cfg.MaxWait > 0 {
		d = math.Min(d, float64(r.cfg.MaxWait))
	}
	d *= 0.8 + 0.4*rand.Float64()
	return time.Duration(d)
}
