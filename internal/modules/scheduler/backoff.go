package scheduler

import "time"

// backoffDelay computes base * 2^retryCount, capped. Doubling in a loop
// avoids overflow for large counts.
func backoffDelay(base, cap time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= cap || d <= 0 {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
