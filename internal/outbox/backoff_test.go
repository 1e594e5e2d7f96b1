package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	testCases := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{"first failure", 1, 2 * time.Second},
		{"second failure", 2, 4 * time.Second},
		{"third failure", 3, 8 * time.Second},
		{"exponent clamp", 8, 256 * time.Second},
		{"beyond clamp", 9, 256 * time.Second},
		{"far beyond clamp", 100, 256 * time.Second},
		{"zero attempts", 0, 1 * time.Second},
		{"negative attempts", -5, 1 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Delay(tc.attempts))
		})
	}
}

func TestDelayNeverExceedsCeiling(t *testing.T) {
	for attempts := 0; attempts <= 50; attempts++ {
		assert.LessOrEqual(t, Delay(attempts), 300*time.Second, "attempts=%d", attempts)
	}
}

func TestDelayIsDeterministic(t *testing.T) {
	// No jitter: repeated calls with the same attempts give the same delay.
	for i := 0; i < 10; i++ {
		assert.Equal(t, Delay(4), Delay(4))
	}
}
