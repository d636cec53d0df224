package infra

import (
	"time"
)

const (
	// Standard backoff constants
	baseDelay = 100 * time.Millisecond
	maxDelay  = 10 * time.Second
)

// CalculateBackoff returns the exponential backoff duration for a given retry count.
// Logic: baseDelay * 2^retryCount, capped at maxDelay.
// If retryCount is negative, it returns baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}

	// 2^retryCount overflows long before the cap matters, so bail early.
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)

	if backoff > maxDelay {
		return maxDelay
	}

	return backoff
}
