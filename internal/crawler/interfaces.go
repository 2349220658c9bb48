package crawler

import (
	"context"
	"time"
)

// Transport fetches a URL, optionally through a proxy, and returns the raw page.
type Transport interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw page content into results.
type Extractor interface {
	Extract(body []byte, cfg ExtractionConfig) ([]SearchResult, error)
}

// ProxyLeaser hands out proxy addresses and accepts eviction reports.
type ProxyLeaser interface {
	LeaseRandom() (string, bool)
	MarkDead(address string)
}

// BlockDetector recognizes challenge pages served with a success status.
type BlockDetector interface {
	Blocked(resp FetchResponse) bool
}

// IdentityProvider supplies a client identity per request.
type IdentityProvider interface {
	UserAgent() string
}

// RateLimiter blocks until a request to url may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// BackoffPolicy yields the pause before retry attempt n (1-based).
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// Pauser suspends the caller. Implementations return early when ctx ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// CheckpointStore persists the single active checkpoint of a run.
type CheckpointStore interface {
	Load(ctx context.Context) (*Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// ResultStore is durable, append-only result output.
type ResultStore interface {
	Existing(ctx context.Context) ([]SearchResult, error)
	Append(ctx context.Context, results []SearchResult) error
}

// Publisher pushes appended results to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
