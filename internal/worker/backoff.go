// Package worker consumes delivery jobs, dispatches them over HTTP, and
// drives the delivery state machine. All retry timing is delegated to the
// broker via per-message expiration; this package only computes the delays.
package worker

import "time"

// RetryDelay maps the failed attempt number to the backoff before the next
// attempt. Attempts past the fourth share the 30-minute ceiling; attempt
// five never reschedules because it exhausts the budget.
func RetryDelay(failedAttempt int) time.Duration {
	switch {
	case failedAttempt <= 1:
		return 30 * time.Second
	case failedAttempt == 2:
		return 2 * time.Minute
	case failedAttempt == 3:
		return 10 * time.Minute
	default:
		return 30 * time.Minute
	}
}
