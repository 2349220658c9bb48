package crawler

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// ExponentialBackoff doubles the delay on every attempt (1x, 2x, 4x, ...) up to maxDelay.
// A jitter fraction in (0, 1] adds up to that share of the delay; the sequence stays non-decreasing.
type ExponentialBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	jitter    float64
}

// NewExponentialBackoff builds a doubling policy. Zero values fall back to 1s base and 30s cap.
func NewExponentialBackoff(base, maxDelay time.Duration, jitter float64) *ExponentialBackoff {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return &ExponentialBackoff{baseDelay: base, maxDelay: maxDelay, jitter: jitter}
}

// Delay returns the pause before retry attempt n, where n starts at 1.
func (p *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if p.jitter > 0 && delay < float64(p.maxDelay) {
		delay += float64(randomDuration(time.Duration(delay * p.jitter)))
	}
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay)
}

// RandomBackoff pauses for a uniform random duration in [min, max] regardless of attempt.
type RandomBackoff struct {
	min time.Duration
	max time.Duration
}

// NewRandomBackoff builds a flat jitter policy.
func NewRandomBackoff(minDelay, maxDelay time.Duration) *RandomBackoff {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &RandomBackoff{min: minDelay, max: maxDelay}
}

// Delay ignores the attempt number.
func (p *RandomBackoff) Delay(_ int) time.Duration {
	return RandomBetween(p.min, p.max)
}

// RandomBetween returns a uniform duration in [lo, hi].
func RandomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + randomDuration(hi-lo+1)
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
