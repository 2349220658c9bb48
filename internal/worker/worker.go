// Package worker fetches and extracts a single results page with proxy rotation and retries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/metrics"
)

// Page outcome labels recorded in metrics.
const (
	StatusFetched     = "fetched"
	StatusAbandoned   = "abandoned"
	StatusInterrupted = "interrupted"
)

// Config controls Worker behavior.
type Config struct {
	// MaxRetries is the number of attempts made before a page is abandoned.
	MaxRetries int
	// Timeout bounds each transport call.
	Timeout time.Duration
	// FallbackDirect adds one unproxied attempt after the proxied ones fail.
	FallbackDirect bool
	// RequireProxy interrupts the page instead of fetching directly when the pool is empty.
	RequireProxy bool
	Politeness   crawler.Politeness
	// Detector turns challenge pages into proxy-attributable failures. Nil disables the check.
	Detector crawler.BlockDetector
}

// Worker executes the per-page fetch algorithm. It is safe for concurrent use
// as long as its collaborators are.
type Worker struct {
	transport crawler.Transport
	extractor crawler.Extractor
	proxies   crawler.ProxyLeaser
	identity  crawler.IdentityProvider
	limiter   crawler.RateLimiter
	backoff   crawler.BackoffPolicy
	pauser    crawler.Pauser
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. Nil proxies, identity and limiter disable those concerns.
func New(
	transport crawler.Transport,
	extractor crawler.Extractor,
	proxies crawler.ProxyLeaser,
	identity crawler.IdentityProvider,
	limiter crawler.RateLimiter,
	backoff crawler.BackoffPolicy,
	pauser crawler.Pauser,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if backoff == nil {
		backoff = crawler.NewExponentialBackoff(time.Second, 30*time.Second, 0)
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		transport: transport,
		extractor: extractor,
		proxies:   proxies,
		identity:  identity,
		limiter:   limiter,
		backoff:   backoff,
		pauser:    pauser,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process fetches one page. It never panics on failure: an exhausted page comes back
// with Err set and no results, and a page that could not be attempted is Interrupted.
func (w *Worker) Process(ctx context.Context, task crawler.PageTask, source crawler.SourceConfig) crawler.PageOutcome {
	outcome := crawler.PageOutcome{PageIndex: task.PageIndex}
	logger := w.logger.With(zap.Int("page", task.PageIndex), zap.String("query", task.Query))

	if task.RetriesRemaining <= 0 {
		task.RetriesRemaining = w.cfg.MaxRetries
	}
	var (
		lastErr     error
		usedProxies bool
	)
	for task.RetriesRemaining > 0 {
		if err := ctx.Err(); err != nil {
			return w.interrupt(outcome, err)
		}
		proxy, ok := w.lease()
		if !ok && w.cfg.RequireProxy {
			logger.Warn("no proxies left for page")
			return w.interrupt(outcome, fmt.Errorf("page %d: %w", task.PageIndex, crawler.ErrNoProxies))
		}
		usedProxies = usedProxies || ok

		outcome.Attempts++
		outcome.Proxy = proxy
		results, err := w.attempt(ctx, task, source, proxy)
		if err == nil {
			return w.succeed(ctx, outcome, results)
		}
		if errors.Is(err, errExtract) {
			logger.Error("extraction failed", zap.Error(err))
			return w.abandon(outcome, err)
		}
		if ctx.Err() != nil {
			return w.interrupt(outcome, err)
		}

		task.RetriesRemaining--
		lastErr = err
		if proxy != "" && crawler.IsProxyFault(err) {
			w.proxies.MarkDead(proxy)
			logger.Info("proxy evicted", zap.String("proxy", proxy), zap.Error(err))
		}
		logger.Warn("page fetch failed",
			zap.Int("attempt", outcome.Attempts),
			zap.Int("retries_remaining", task.RetriesRemaining),
			zap.String("proxy", proxy),
			zap.Error(err),
		)
		if task.RetriesRemaining > 0 {
			task.Backoff = w.backoff.Delay(outcome.Attempts)
			logger.Debug("backing off", zap.Duration("backoff", task.Backoff))
			w.pauser.Pause(ctx, task.Backoff)
		}
	}

	if w.cfg.FallbackDirect && usedProxies && ctx.Err() == nil {
		task.Backoff = w.backoff.Delay(outcome.Attempts)
		w.pauser.Pause(ctx, task.Backoff)
		outcome.Attempts++
		outcome.Proxy = ""
		results, err := w.attempt(ctx, task, source, "")
		if err == nil {
			logger.Info("direct fallback succeeded")
			return w.succeed(ctx, outcome, results)
		}
		logger.Warn("direct fallback failed", zap.Error(err))
		lastErr = err
	}

	logger.Error("page abandoned", zap.Int("attempts", outcome.Attempts), zap.Error(lastErr))
	return w.abandon(outcome, fmt.Errorf("page %d abandoned after %d attempts: %w", task.PageIndex, outcome.Attempts, lastErr))
}

var errExtract = errors.New("extract results")

func (w *Worker) attempt(
	ctx context.Context,
	task crawler.PageTask,
	source crawler.SourceConfig,
	proxy string,
) ([]crawler.SearchResult, error) {
	request := w.buildRequest(task, source, proxy)
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, request.URL); err != nil {
			return nil, err
		}
	}

	// An attempt that has started runs to completion or timeout.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.Timeout)
	defer cancel()
	resp, err := w.transport.Fetch(fetchCtx, request)
	if err == nil && w.cfg.Detector != nil && w.cfg.Detector.Blocked(resp) {
		err = fmt.Errorf("%w at %s", crawler.ErrBlocked, resp.URL)
	}
	metrics.ObserveFetchAttempt(source.BaseURL, proxy != "", err, len(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", task.PageIndex, err)
	}

	results, err := w.extractor.Extract(resp.Body, source.Extraction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errExtract, err)
	}
	return results, nil
}

func (w *Worker) buildRequest(task crawler.PageTask, source crawler.SourceConfig, proxy string) crawler.FetchRequest {
	params := map[string]string{}
	if source.QueryParam != "" {
		params[source.QueryParam] = task.Query
	}
	if source.PageParam != "" {
		params[source.PageParam] = strconv.Itoa(source.PageValue(task.PageIndex))
	}
	headers := http.Header{}
	if w.identity != nil {
		if ua := w.identity.UserAgent(); ua != "" {
			headers.Set("User-Agent", ua)
		}
	}
	return crawler.FetchRequest{
		URL:               source.BaseURL,
		Params:            params,
		Headers:           headers,
		Proxy:             proxy,
		Timeout:           w.cfg.Timeout,
		Query:             task.Query,
		SearchBoxSelector: source.SearchBoxSelector,
		PageParam:         source.PageParam,
	}
}

func (w *Worker) lease() (string, bool) {
	if w.proxies == nil {
		return "", false
	}
	return w.proxies.LeaseRandom()
}

func (w *Worker) succeed(ctx context.Context, outcome crawler.PageOutcome, results []crawler.SearchResult) crawler.PageOutcome {
	outcome.Results = results
	metrics.ObservePage(StatusFetched)
	w.logger.Debug("page fetched",
		zap.Int("page", outcome.PageIndex),
		zap.Int("results", len(results)),
		zap.Int("attempts", outcome.Attempts),
	)
	w.pauser.Pause(ctx, w.cfg.Politeness.Delay())
	return outcome
}

func (w *Worker) abandon(outcome crawler.PageOutcome, err error) crawler.PageOutcome {
	outcome.Err = err
	outcome.Results = nil
	metrics.ObservePage(StatusAbandoned)
	return outcome
}

func (w *Worker) interrupt(outcome crawler.PageOutcome, err error) crawler.PageOutcome {
	outcome.Err = err
	outcome.Interrupted = true
	metrics.ObservePage(StatusInterrupted)
	return outcome
}
