package services

import (
	"math/rand/v2"
	"time"
)

// backoffCap bounds the exponential backoff between retries.
const backoffCap = 30 * time.Second

// retryBackoff returns the wait before retry number attempt (1-based):
// exponential in the attempt, capped, with up to +/-25% jitter so
// parallel workers do not retry in lockstep.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > backoffCap || backoff <= 0 {
		backoff = backoffCap
	}
	// Sub-2ns backoffs would make the jitter interval empty.
	jitter := time.Duration(rand.Int64N(max(int64(backoff)/2, 1))) - backoff/4
	return backoff + jitter
}
