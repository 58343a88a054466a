package agent

import (
	"context"
	"math/rand"
	"time"
)

// maxStepJitter caps the random component added to each retry delay.
const maxStepJitter = 500 * time.Millisecond

// stepDelay returns the wait before retry attempt (0-based): base doubled
// per attempt plus up to maxStepJitter of jitter, so parallel failures do
// not retry in lockstep.
func stepDelay(attempt int, base time.Duration) time.Duration {
	backoff := base * time.Duration(1<<attempt)
	return backoff + time.Duration(rand.Int63n(int64(maxStepJitter)))
}

// thinkDelay returns a uniformly random pause in [min, max], imitating the
// cadence of a person moving between form fields. min >= max collapses to
// min.
func thinkDelay(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
