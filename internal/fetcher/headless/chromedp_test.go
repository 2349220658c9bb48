package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(fetcher.Close)
	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
}

func TestFetcherNavTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	if got := fetcher.navTimeout(0); got != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	fetcher.cfg.NavigationTimeout = time.Second
	if got := fetcher.navTimeout(0); got != time.Second {
		t.Fatalf("expected config timeout, got %v", got)
	}
	if got := fetcher.navTimeout(3 * time.Second); got != 3*time.Second {
		t.Fatalf("expected request timeout to win, got %v", got)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	if err := fetcher.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fetcher.acquire(ctx); err == nil {
		t.Fatal("expected canceled acquire to fail while slot is held")
	}
	fetcher.release()
	if err := fetcher.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAllocatorOptionsAddProxyFlag(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	base := len(fetcher.allocatorOptions(""))
	if got := len(fetcher.allocatorOptions("http://1.2.3.4:80")); got != base+1 {
		t.Fatalf("expected one extra option for proxy, got %d vs %d", got, base)
	}
}

func TestNavigationActions(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	typed, err := fetcher.navigationActions(crawler.FetchRequest{
		URL:               "https://www.google.com",
		Query:             "golang",
		SearchBoxSelector: "textarea[name=q]",
	})
	if err != nil {
		t.Fatalf("search box actions: %v", err)
	}
	if len(typed) != 4 {
		t.Fatalf("expected setup, navigate, wait and keys, got %d actions", len(typed))
	}

	paged, err := fetcher.navigationActions(crawler.FetchRequest{
		URL:               "https://www.google.com",
		Query:             "golang",
		SearchBoxSelector: "textarea[name=q]",
		PageParam:         "start",
		Params:            map[string]string{"q": "golang", "start": "20"},
	})
	if err != nil {
		t.Fatalf("paged search box actions: %v", err)
	}
	if len(paged) != 6 {
		t.Fatalf("expected a results page reload after the submit, got %d actions", len(paged))
	}

	first, err := fetcher.navigationActions(crawler.FetchRequest{
		URL:               "https://www.google.com",
		Query:             "golang",
		SearchBoxSelector: "textarea[name=q]",
		PageParam:         "start",
		Params:            map[string]string{"q": "golang", "start": "0"},
	})
	if err != nil {
		t.Fatalf("first page actions: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("expected no reload for the first page, got %d actions", len(first))
	}

	direct, err := fetcher.navigationActions(crawler.FetchRequest{
		URL:    "https://pubmed.ncbi.nlm.nih.gov/",
		Params: map[string]string{"term": "golang"},
	})
	if err != nil {
		t.Fatalf("direct actions: %v", err)
	}
	if len(direct) != 2 {
		t.Fatalf("expected setup and navigate, got %d actions", len(direct))
	}

	if _, err := fetcher.navigationActions(crawler.FetchRequest{URL: "://bad"}); err == nil {
		t.Fatal("expected invalid URL to fail")
	}
}

func TestPagedURL(t *testing.T) {
	t.Parallel()

	got, err := pagedURL("https://www.google.com/search?q=golang&sca_esv=1", "start", "20")
	if err != nil {
		t.Fatalf("pagedURL: %v", err)
	}
	if got != "https://www.google.com/search?q=golang&sca_esv=1&start=20" {
		t.Fatalf("unexpected paged url %q", got)
	}

	if v := laterPage(crawler.FetchRequest{PageParam: "start", Params: map[string]string{"start": "10"}}); v != "10" {
		t.Fatalf("laterPage = %q, want 10", v)
	}
	if v := laterPage(crawler.FetchRequest{Params: map[string]string{"start": "10"}}); v != "" {
		t.Fatalf("laterPage without a page param = %q", v)
	}
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	if len(src["X-Test"]) != 2 {
		t.Fatalf("source header mutated: %+v", src)
	}
	if cloneHeader(nil) != nil {
		t.Fatal("expected nil clone of nil header")
	}

	netHeaders := toNetworkHeaders(src)
	switch v := netHeaders["X-Test"].(type) {
	case []string:
		if len(v) != 2 {
			t.Fatalf("expected two entries, got %v", v)
		}
	default:
		t.Fatalf("expected []string, got %T", v)
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  429,
			URL:     "https://scholar.google.com/scholar?q=go",
			Headers: network.Headers{"Retry-After": "30"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 429 || headers.Get("Retry-After") != "30" || url != "https://scholar.google.com/scholar?q=go" {
		t.Fatalf("unexpected snapshot values: status=%d headers=%v url=%s", status, headers, url)
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 200, URL: "https://img"},
	})
	if status, _, _ := meta.snapshot(); status != 429 {
		t.Fatalf("non-document responses must be ignored, got %d", status)
	}

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
}
