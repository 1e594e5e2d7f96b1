package outbox

import "time"

const (
	maxExponent = 8
	maxDelay    = 300 * time.Second
)

// Delay computes the retry delay after the given number of publish attempts.
// attempts starts at 1 on the first failure. The delay is 2^attempts seconds
// with the exponent clamped at 8 (256s) and an absolute ceiling of 5 minutes.
// Deterministic, no jitter.
func Delay(attempts int) time.Duration {
	n := attempts
	if n < 0 {
		n = 0
	}
	if n > maxExponent {
		n = maxExponent
	}
	d := time.Duration(int64(1)<<n) * time.Second
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
