package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

func sampleCheckpoint() crawler.Checkpoint {
	return crawler.Checkpoint{
		RunID:       "0190d5f4-0000-7000-8000-000000000001",
		Query:       "crispr",
		Config:      crawler.SourceConfig{Name: "pubmed", BaseURL: "https://pubmed.ncbi.nlm.nih.gov/", QueryParam: "term", PageParam: "page"},
		StartPage:   0,
		TotalPages:  20,
		CurrentPage: 7,
		FailedPages: []int{3},
		AccumulatedResults: []crawler.SearchResult{
			{Title: "Genome editing", Link: "https://pubmed.ncbi.nlm.nih.gov/1/"},
		},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "progress.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	cp, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp, "missing file means no checkpoint")

	want := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	want.CurrentPage = 9
	require.NoError(t, store.Save(ctx, want))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, got.CurrentPage)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreCorruptFileIsAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"query": "crispr", "currentPage": `), 0o600))
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	cp, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestFileStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("  ", nil)
	require.Error(t, err)
}

func TestDecodeClampsCurrentPage(t *testing.T) {
	t.Parallel()

	cp, err := Decode([]byte(`{"query":"q","startPage":4,"currentPage":1,"totalPages":10}`))
	require.NoError(t, err)
	assert.Equal(t, 4, cp.CurrentPage)

	_, err = Decode([]byte(`{"currentPage":1}`))
	require.Error(t, err)
}
