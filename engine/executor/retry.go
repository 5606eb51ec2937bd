package executor

import (
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/realtalishaw/super-enigma/engine/dag"
)

const defaultMaxRetryDelay = 30 * time.Second

// linearBackoff implements retry.Backoff for spec.md §4.3's linear
// policy: attempt k (1-indexed) waits k*delay_ms, capped by maxDelay.
// go-retry ships constant/exponential/fibonacci growth but not this one,
// so this is the one hand-rolled Backoff in the package; everything
// else (attempt counting, retryable-vs-fatal stop, cap) still goes
// through retry.Do via this interface.
type linearBackoff struct {
	delay    time.Duration
	maxDelay time.Duration
	attempt  uint64
}

func (b *linearBackoff) Next() (time.Duration, bool) {
	b.attempt++
	d := time.Duration(b.attempt) * b.delay
	if d > b.maxDelay {
		d = b.maxDelay
	}
	return d, false
}

// backoffFor builds the retry.Backoff a retry policy's node invocations
// drive through retry.Do, bounded by both the policy's own retry count
// and spec.md §4.3's MAX_RETRY_DELAY_MS ceiling.
func backoffFor(policy *dag.RetryPolicy, maxRetryDelay time.Duration) retry.Backoff {
	if maxRetryDelay <= 0 {
		maxRetryDelay = defaultMaxRetryDelay
	}
	delay := time.Duration(policy.DelayMS) * time.Millisecond
	var b retry.Backoff
	switch policy.Backoff {
	case dag.BackoffLinear:
		b = &linearBackoff{delay: delay, maxDelay: maxRetryDelay}
	default: // dag.BackoffExponential
		exp := retry.NewExponential(delay)
		b = retry.WithCappedDuration(maxRetryDelay, exp)
	}
	return retry.WithMaxRetries(uint64(policy.Retries), b)
}
