package analyze

import "time"

// percentOfLifetime computes the percentage of a connection lifetime covered
// by one blocked interval. A zero-length lifetime is a documented degenerate
// input: the result is 0 rather than an undefined division.
func percentOfLifetime(lifetime, blocked time.Duration) float64 {
	if lifetime == 0 {
		return 0
	}
	return 100 * float64(blocked) / float64(lifetime)
}
