package crawler

import (
	"context"
	"time"
)

// TimerPauser sleeps on a timer and wakes early when the context ends.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Politeness is the randomized pause taken after a successful fetch.
type Politeness struct {
	Min time.Duration
	Max time.Duration
}

// Delay picks the next politeness pause.
func (p Politeness) Delay() time.Duration {
	return RandomBetween(p.Min, p.Max)
}

// SystemClock implements Clock with UTC wall time.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
