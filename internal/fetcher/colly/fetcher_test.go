package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "default-agent", Timeout: time.Second})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"User-Agent": {"rotated-agent"}},
		Proxy:   "1.2.3.4:80",
	}

	collector, err := f.buildCollector(req, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	require.NoError(t, err)
	require.Equal(t, "rotated-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)

	_, err = f.buildCollector(crawler.FetchRequest{Proxy: "garbage"}, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	require.Error(t, err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}, "User-Agent": {"skip-me"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	require.Empty(t, collyReq.Headers.Get("User-Agent"), "user agent is set on the collector, not copied")

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")

	hooks.onError(&colly.Response{StatusCode: http.StatusTooManyRequests, Request: &colly.Request{URL: mustParseURL(t, "https://example.com")}}, errors.New("Too Many Requests"))
	var statusErr *crawler.StatusError
	require.ErrorAs(t, fetchErr, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestFetchDirect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "deep learning", r.URL.Query().Get("term"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok " + r.UserAgent() + "</html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL,
		Params:  map[string]string{"term": "deep learning", "page": "2"},
		Headers: http.Header{"User-Agent": {"agent-x"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "agent-x")
}

func TestFetchThroughProxy(t *testing.T) {
	t.Parallel()

	var proxied atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Add(1)
		assert.Equal(t, "search.invalid", r.URL.Host, "proxy receives the absolute target URL")
		_, _ = w.Write([]byte("<html>via proxy</html>"))
	}))
	defer proxy.Close()

	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:   "http://search.invalid/results",
		Proxy: strings.TrimPrefix(proxy.URL, "http://"),
	})
	require.NoError(t, err)
	require.Equal(t, "<html>via proxy</html>", string(resp.Body))
	require.Equal(t, int32(1), proxied.Load())
}

func TestFetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	var statusErr *crawler.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	require.True(t, crawler.IsProxyFault(err))
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), crawler.FetchRequest{
		URL:   "http://search.invalid/",
		Proxy: addr,
	})
	require.ErrorIs(t, err, crawler.ErrTransport)
	require.True(t, crawler.IsProxyFault(err))
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	collyReq := &colly.Request{Headers: &http.Header{}}
	copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
