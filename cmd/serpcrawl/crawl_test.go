package main

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/checkpoint"
	"github.com/JakeFAU/serp-crawler/internal/config"
	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

var testSource = crawler.SourceConfig{Name: "pubmed", BaseURL: "https://pubmed.ncbi.nlm.nih.gov/"}

func storeWith(t *testing.T, cp *crawler.Checkpoint) crawler.CheckpointStore {
	t.Helper()
	store, err := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "progress.json"), zap.NewNop())
	require.NoError(t, err)
	if cp != nil {
		require.NoError(t, store.Save(context.Background(), *cp))
	}
	return store
}

func input(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestDecideResume(t *testing.T) {
	t.Parallel()

	stored := &crawler.Checkpoint{Query: "crispr", Config: testSource, TotalPages: 20, CurrentPage: 7}

	cases := []struct {
		name     string
		stored   *crawler.Checkpoint
		flags    crawlFlags
		answer   string
		resuming bool
		wantErr  error
	}{
		{name: "no checkpoint", flags: crawlFlags{query: "crispr"}},
		{name: "fresh flag skips prompt", stored: stored, flags: crawlFlags{query: "crispr", fresh: true}},
		{name: "resume flag", stored: stored, flags: crawlFlags{query: "crispr", resume: true}, resuming: true},
		{name: "prompt default resumes", stored: stored, flags: crawlFlags{query: "crispr"}, answer: "\n", resuming: true},
		{name: "prompt declined", stored: stored, flags: crawlFlags{query: "crispr"}, answer: "n\n"},
		{
			name: "resume flag on other query", stored: stored,
			flags: crawlFlags{query: "rna", resume: true}, wantErr: checkpoint.ErrCheckpointMismatch,
		},
		{
			name: "mismatch kept", stored: stored,
			flags: crawlFlags{query: "rna"}, answer: "\n", wantErr: checkpoint.ErrCheckpointMismatch,
		},
		{name: "mismatch discarded", stored: stored, flags: crawlFlags{query: "rna"}, answer: "y\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			resuming, err := decideResume(context.Background(), storeWith(t, tc.stored), input(tc.answer), &out, tc.flags, testSource)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.resuming, resuming)
		})
	}
}

func TestAskAndConfirm(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	q, err := ask(input("  machine learning \n"), &out, "Search query: ")
	require.NoError(t, err)
	require.Equal(t, "machine learning", q)
	require.Equal(t, "Search query: ", out.String())

	q, err = ask(input("no newline"), &out, "q: ")
	require.NoError(t, err)
	require.Equal(t, "no newline", q)

	_, err = ask(input(""), &out, "q: ")
	require.Error(t, err)

	n, err := askInt(input("12\n"), &out, "pages: ")
	require.NoError(t, err)
	require.Equal(t, 12, n)
	_, err = askInt(input("-1\n"), &out, "pages: ")
	require.Error(t, err)

	yes, err := confirm(input("YES\n"), &out, "ok? ", false)
	require.NoError(t, err)
	require.True(t, yes)
	yes, err = confirm(input(""), &out, "ok? ", true)
	require.NoError(t, err)
	require.True(t, yes)
}

func TestProxySources(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Proxy: config.ProxyConfig{
		Sources: []string{"sslproxies", "proxy-list-download"},
		File:    "proxies.txt",
		Static:  []string{"10.0.0.1:80"},
	}}
	srcs, err := proxySources(cfg, []string{"10.0.0.2:80"}, "ua", zap.NewNop())
	require.NoError(t, err)
	names := make([]string, 0, len(srcs))
	for _, s := range srcs {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"sslproxies", "proxy-list-download", "file:proxies.txt", "static"}, names)

	static, err := srcs[3].Candidates(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:80", "10.0.0.2:80"}, static)

	cfg.Proxy.Sources = []string{"hidemy.name"}
	_, err = proxySources(cfg, nil, "ua", zap.NewNop())
	require.Error(t, err)
}

func TestBuildBackoff(t *testing.T) {
	t.Parallel()

	random := buildBackoff(config.RetryConfig{Mode: "random", MinDelay: 5 * time.Second, MaxDelay: 15 * time.Second})
	for attempt := 1; attempt < 5; attempt++ {
		d := random.Delay(attempt)
		require.GreaterOrEqual(t, d, 5*time.Second)
		require.LessOrEqual(t, d, 15*time.Second)
	}

	exp := buildBackoff(config.RetryConfig{Mode: "exponential", BaseDelay: time.Second, MaxDelay: 30 * time.Second})
	require.Equal(t, time.Second, exp.Delay(1))
	require.Equal(t, 4*time.Second, exp.Delay(3))
}

func TestBuildProxyPoolDisabled(t *testing.T) {
	t.Parallel()

	pool, err := buildProxyPool(context.Background(), config.Config{}, []string{"10.0.0.1:80"}, "ua", zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 0, pool.Size())
}

func TestBuildProxyPoolWithoutValidation(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Proxy: config.ProxyConfig{Enabled: true, Static: []string{"10.0.0.1:80", "10.0.0.1:80"}}}
	pool, err := buildProxyPool(context.Background(), cfg, []string{"10.0.0.2:80"}, "ua", zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, pool.Size())
}
