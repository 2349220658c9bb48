// Package headless contains transports that drive a real browser via chromedp.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Config controls the behavior of the headless transport.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleMin and SettleMax bound the random wait after the results page loads.
	SettleMin time.Duration
	SettleMax time.Duration
	ExecPath  string
}

// Fetcher implements crawler.Transport using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless transport backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleMax < cfg.SettleMin {
		cfg.SettleMax = cfg.SettleMin
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	f := &Fetcher{cfg: cfg, limiter: limiter}
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), f.allocatorOptions("")...)
	return f, nil
}

// Close cancels the shared allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

func (f *Fetcher) allocatorOptions(proxyServer string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	if proxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(proxyServer))
	}
	return opts
}

// Fetch renders the results page in a browser and returns the final DOM.
// A proxied request gets its own browser since the proxy is a launch flag.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()

	allocator := f.allocator
	if request.Proxy != "" {
		proxyURL, err := crawler.ProxyURL(request.Proxy)
		if err != nil {
			return crawler.FetchResponse{}, err
		}
		var cancel context.CancelFunc
		allocator, cancel = chromedp.NewExecAllocator(context.Background(), f.allocatorOptions(proxyURL.String())...)
		defer cancel()
	}

	taskCtx, taskCancel := chromedp.NewContext(allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout(request.Timeout))
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("%w: %w", crawler.ErrTransport, err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	if status >= http.StatusBadRequest {
		return crawler.FetchResponse{}, &crawler.StatusError{Code: status, URL: responseURL}
	}

	return crawler.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, request crawler.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions, err := f.navigationActions(request)
	if err != nil {
		return "", "", err
	}
	actions = append(actions,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(crawler.RandomBetween(f.cfg.SettleMin, f.cfg.SettleMax)),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

// navigationActions types the query into the search box when one is configured,
// otherwise it loads the fully parameterized URL. After a search box submit, pages
// past the first are reached by reloading the results URL with the page parameter.
func (f *Fetcher) navigationActions(request crawler.FetchRequest) ([]chromedp.Action, error) {
	setup := f.networkSetupAction(request.Headers)
	if request.SearchBoxSelector != "" && request.Query != "" {
		actions := []chromedp.Action{
			setup,
			chromedp.Navigate(request.URL),
			chromedp.WaitVisible(request.SearchBoxSelector, chromedp.ByQuery),
			chromedp.SendKeys(request.SearchBoxSelector, request.Query+kb.Enter, chromedp.ByQuery),
		}
		if page := laterPage(request); page != "" {
			actions = append(actions,
				chromedp.WaitReady("body", chromedp.ByQuery),
				chromedp.ActionFunc(func(ctx context.Context) error {
					var location string
					if err := chromedp.Location(&location).Do(ctx); err != nil {
						return fmt.Errorf("read results url: %w", err)
					}
					target, err := pagedURL(location, request.PageParam, page)
					if err != nil {
						return err
					}
					return chromedp.Navigate(target).Do(ctx)
				}),
			)
		}
		return actions, nil
	}
	target, err := request.FullURL()
	if err != nil {
		return nil, err
	}
	return []chromedp.Action{setup, chromedp.Navigate(target)}, nil
}

// laterPage returns the page parameter value when it selects a page past the first.
func laterPage(request crawler.FetchRequest) string {
	if request.PageParam == "" {
		return ""
	}
	value := request.Params[request.PageParam]
	if value == "" || value == "0" {
		return ""
	}
	return value
}

// pagedURL sets param=value on the results URL the search box led to.
func pagedURL(location, param, value string) (string, error) {
	return crawler.FetchRequest{URL: location, Params: map[string]string{param: value}}.FullURL()
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	ua := f.cfg.UserAgent
	if v := headers.Get("User-Agent"); v != "" {
		ua = v
	}
	extra := cloneHeader(headers)
	if extra != nil {
		extra.Del("User-Agent")
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(extra)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
