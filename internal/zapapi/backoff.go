package zapapi

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// ExponentialBackoff produces jittered exponential delays for fetch retries.
type ExponentialBackoff struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialBackoff builds a policy with the given attempt budget.
func NewExponentialBackoff(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialBackoff {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	return &ExponentialBackoff{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// MaxAttempts returns the total attempt budget.
func (p *ExponentialBackoff) MaxAttempts() int { return p.maxAttempts }

// Delay returns the wait duration before the given zero-based retry attempt.
func (p *ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
