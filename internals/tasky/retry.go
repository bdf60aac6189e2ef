package tasky

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy spaces out redeliveries of a job whose handler failed.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before redelivery number attempt (1-based): Base
// doubled per attempt and capped at Max. Zero means redeliver immediately.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.Base <= 0 {
		return 0
	}
	backoff := retry.NewExponential(p.Base)
	if p.Max > 0 {
		backoff = retry.WithCappedDuration(p.Max, backoff)
	}
	var delay time.Duration
	for range attempt {
		next, stop := backoff.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}
