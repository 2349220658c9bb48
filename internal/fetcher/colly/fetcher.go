// Package collyfetcher implements crawler.Transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Transport using the Colly collector.
// Each request gets its own collector because clones share one HTTP backend,
// and the transport differs per proxy.
type Fetcher struct {
	cfg       Config
	transport *http.Transport
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single HTTP GET, routed through request.Proxy when set.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	target, err := request.FullURL()
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector, err := f.buildCollector(request, time.Now(), &result, &fetchErr)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) (*colly.Collector, error) {
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	collector.IgnoreRobotsTxt = true
	collector.UserAgent = f.cfg.UserAgent
	if ua := request.Headers.Get("User-Agent"); ua != "" {
		collector.UserAgent = ua
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)

	transport := f.transport
	if request.Proxy != "" {
		proxyURL, err := crawler.ProxyURL(request.Proxy)
		if err != nil {
			return nil, err
		}
		transport = f.transport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.DisableKeepAlives = true
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			target := ""
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
			*fetchErr = &crawler.StatusError{Code: r.StatusCode, URL: target}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var statusErr *crawler.StatusError
		if errors.As(*fetchErr, &statusErr) {
			return fmt.Errorf("colly response failed: %w", statusErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", errors.Join(crawler.ErrTransport, err))
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", errors.Join(crawler.ErrTransport, *fetchErr))
		}
		return nil
	}
}

func copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	for key, values := range request.Headers {
		if http.CanonicalHeaderKey(key) == "User-Agent" {
			continue
		}
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
