// Package ratelimit caps the request rate per target host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/serp-crawler/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// Limiter keeps one token bucket per host, created on first use.
type Limiter struct {
	every rate.Limit
	burst int
	hosts sync.Map // host -> *rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	l := &Limiter{every: rate.Inf, burst: max(cfg.DefaultBurst, 1)}
	if cfg.DefaultRPS > 0 {
		l.every = rate.Limit(cfg.DefaultRPS)
	}
	return l
}

// Wait blocks until the host of rawURL has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	began := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", host, err)
	}
	// Immediate grants are not worth a histogram sample.
	if waited := time.Since(began); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	if b, ok := l.hosts.Load(host); ok {
		return b.(*rate.Limiter)
	}
	b, _ := l.hosts.LoadOrStore(host, rate.NewLimiter(l.every, l.burst))
	return b.(*rate.Limiter)
}
