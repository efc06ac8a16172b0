package harness

import "time"

// AdjustTimeout scales d by factor percent. Slow environments raise the
// factor instead of every individual timeout. Non-positive factors leave d
// unchanged.
func AdjustTimeout(d time.Duration, factor int) time.Duration {
	if factor <= 0 || factor == 100 {
		return d
	}
	return d * time.Duration(factor) / 100
}
