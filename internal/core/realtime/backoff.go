package realtime

import (
	"math"
	"time"
)

// backoffDelay returns the reconnect delay for a 1-indexed attempt:
// min(initial * multiplier^(attempt-1), max). Attempt values below 1 are
// clamped to 1.
func backoffDelay(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	scaled := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if scaled > float64(max) || math.IsInf(scaled, 1) {
		return max
	}
	return time.Duration(scaled)
}
