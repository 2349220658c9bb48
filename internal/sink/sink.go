package sink

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/metrics"
)

// Options labels published messages.
type Options struct {
	RunID string
	Query string
}

// Message is the payload published for each appended result.
type Message struct {
	RunID  string            `json:"runId"`
	Query  string            `json:"query"`
	Title  string            `json:"title"`
	Link   string            `json:"link"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Sink deduplicates results against everything already stored and appends the rest.
type Sink struct {
	store     crawler.ResultStore
	publisher crawler.Publisher
	opts      Options
	logger    *zap.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	loaded bool
}

// New wires a Sink. publisher may be nil.
func New(store crawler.ResultStore, publisher crawler.Publisher, opts Options, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, publisher: publisher, opts: opts, logger: logger}
}

// SetRunID changes the run label stamped on published messages.
func (s *Sink) SetRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.RunID = runID
}

// Write appends the results not yet present in the store and returns them.
// The store is read once per Sink; afterwards the in-memory seen set is authoritative.
func (s *Sink) Write(ctx context.Context, results []crawler.SearchResult) ([]crawler.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		existing, err := s.store.Existing(ctx)
		if err != nil {
			return nil, fmt.Errorf("load existing results: %w", err)
		}
		s.seen = make(map[string]struct{}, len(existing))
		for _, r := range existing {
			s.seen[r.Key()] = struct{}{}
		}
		s.loaded = true
		s.logger.Debug("loaded existing results", zap.Int("count", len(existing)))
	}

	var delta []crawler.SearchResult
	for _, r := range results {
		key := r.Key()
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		delta = append(delta, r)
	}
	if len(delta) == 0 {
		return nil, nil
	}
	if err := s.store.Append(ctx, delta); err != nil {
		for _, r := range delta {
			delete(s.seen, r.Key())
		}
		return nil, fmt.Errorf("append results: %w", err)
	}
	metrics.ObserveResultsAppended(len(delta))
	s.publish(ctx, delta)
	return delta, nil
}

func (s *Sink) publish(ctx context.Context, delta []crawler.SearchResult) {
	if s.publisher == nil {
		return
	}
	attrs := map[string]string{"run_id": s.opts.RunID, "query": s.opts.Query}
	for _, r := range delta {
		msg := Message{RunID: s.opts.RunID, Query: s.opts.Query, Title: r.Title, Link: r.Link, Fields: r.Fields}
		if _, err := s.publisher.Publish(ctx, msg, attrs); err != nil {
			s.logger.Warn("publish result failed", zap.String("link", r.Link), zap.Error(err))
		}
	}
}
