package interview

import (
	"math"
	"time"
)

// RemainingMinutes returns the whole minutes left in the interview's time
// budget, rounded up and floored at zero. It returns nil when no budget is
// configured.
func RemainingMinutes(estimatedMinutes *int, startedAt, now time.Time) *int {
	if estimatedMinutes == nil {
		return nil
	}
	elapsed := now.Sub(startedAt).Minutes()
	remaining := int(math.Ceil(float64(*estimatedMinutes) - elapsed))
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// TimeUp reports whether a configured budget has been used up.
func TimeUp(remaining *int) bool {
	return remaining != nil && *remaining == 0
}
