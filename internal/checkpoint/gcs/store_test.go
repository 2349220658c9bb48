package gcs

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

const testBucket = "crawls"

// fakeGCS serves XML reads and multipart JSON uploads for one bucket.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	deny    bool
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.deny {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"+testBucket+"/o"):
		f.upload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/"+testBucket+"/"):
		f.mu.Lock()
		data, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/"+testBucket+"/")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("X-Goog-Generation", "1")
		w.Header().Set("X-Goog-Metageneration", "1")
		_, _ = w.Write(data)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	parts := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := parts.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaPart, err := parts.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(mediaPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.put(meta.Name, data)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"bucket":     testBucket,
		"name":       meta.Name,
		"size":       strconv.Itoa(len(data)),
		"generation": "1",
	})
}

func (f *fakeGCS) put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[name] = data
}

func newFakeStore(t *testing.T, fake *fakeGCS) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: testBucket, Object: "runs/progress.json"}, nil)
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b", Object: "o"}, nil)
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Object: "progress.json"}, nil)
	require.Error(t, err)
	_, err = New(client, Config{Bucket: "crawls"}, nil)
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "crawls", Object: "runs/progress.json"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gs://crawls/runs/progress.json", store.URI())
}

func TestLoadMissingObject(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t, &fakeGCS{})
	cp, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestLoadCorruptObjectIsAbsent(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	fake.put("runs/progress.json", []byte(`{"query": "crispr", "currentPage": `))
	store := newFakeStore(t, fake)

	cp, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestLoadPropagatesAccessErrors(t *testing.T) {
	t.Parallel()

	store := newFakeStore(t, &fakeGCS{deny: true})
	_, err := store.Load(context.Background())
	require.ErrorContains(t, err, "open checkpoint gs://crawls/runs/progress.json")
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	store := newFakeStore(t, fake)
	ctx := context.Background()

	saved := crawler.Checkpoint{
		RunID:       "run-1",
		Query:       "crispr",
		Config:      crawler.SourceConfig{Name: "pubmed", BaseURL: "https://pubmed.ncbi.nlm.nih.gov/"},
		TotalPages:  20,
		CurrentPage: 7,
		AccumulatedResults: []crawler.SearchResult{
			{Title: "Base editing", Link: "https://pubmed.ncbi.nlm.nih.gov/1/"},
		},
	}
	require.NoError(t, store.Save(ctx, saved))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, 7, loaded.CurrentPage)
	assert.Equal(t, 20, loaded.TotalPages)
	assert.Equal(t, saved.AccumulatedResults, loaded.AccumulatedResults)

	saved.CurrentPage = 9
	require.NoError(t, store.Save(ctx, saved))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.CurrentPage)
}
