package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

type memoryStore struct {
	mu        sync.Mutex
	rows      []crawler.SearchResult
	loads     int
	appendErr error
}

func (m *memoryStore) Existing(context.Context) ([]crawler.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return append([]crawler.SearchResult(nil), m.rows...), nil
}

func (m *memoryStore) Append(_ context.Context, results []crawler.SearchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows = append(m.rows, results...)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	attrs    []map[string]string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, payload any, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, payload.(Message))
	p.attrs = append(p.attrs, attrs)
	return "id", nil
}

func TestSinkWriteAppendsOnlyDelta(t *testing.T) {
	t.Parallel()

	a := crawler.SearchResult{Title: "A", Link: "https://a"}
	b := crawler.SearchResult{Title: "B", Link: "https://b"}
	store := &memoryStore{rows: []crawler.SearchResult{a}}
	pub := &recordingPublisher{}
	s := New(store, pub, Options{RunID: "run-1", Query: "golang"}, nil)

	ctx := context.Background()
	delta, err := s.Write(ctx, []crawler.SearchResult{a, b, b})
	require.NoError(t, err)
	assert.Equal(t, []crawler.SearchResult{b}, delta)

	delta, err = s.Write(ctx, []crawler.SearchResult{b})
	require.NoError(t, err)
	assert.Empty(t, delta)

	assert.Equal(t, []crawler.SearchResult{a, b}, store.rows)
	assert.Equal(t, 1, store.loads)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "B", pub.messages[0].Title)
	assert.Equal(t, map[string]string{"run_id": "run-1", "query": "golang"}, pub.attrs[0])
}

func TestSinkAppendFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	store := &memoryStore{appendErr: errors.New("disk full")}
	s := New(store, nil, Options{}, nil)
	row := crawler.SearchResult{Title: "A", Link: "https://a"}

	_, err := s.Write(context.Background(), []crawler.SearchResult{row})
	require.ErrorContains(t, err, "disk full")

	store.appendErr = nil
	delta, err := s.Write(context.Background(), []crawler.SearchResult{row})
	require.NoError(t, err)
	assert.Len(t, delta, 1)
}

func TestSinkPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	s := New(store, &recordingPublisher{err: errors.New("unavailable")}, Options{}, nil)

	delta, err := s.Write(context.Background(), []crawler.SearchResult{{Title: "A", Link: "https://a"}})
	require.NoError(t, err)
	assert.Len(t, delta, 1)
	assert.Len(t, store.rows, 1)
}
