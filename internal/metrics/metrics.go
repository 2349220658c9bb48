// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	proxyPoolSize              prometheus.Gauge
	proxyEvictionsTotal        prometheus.Counter
	proxyValidationsTotal      *prometheus.CounterVec
	resultsAppendedTotal       prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpcrawl_pages_total",
				Help: "Pages finished, labeled by terminal status (fetched, abandoned, interrupted).",
			},
			[]string{"status"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpcrawl_fetch_attempts_total",
				Help: "Transport attempts, labeled by outcome and whether a proxy carried them.",
			},
			[]string{"outcome", "route"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpcrawl_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		proxyPoolSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "serpcrawl_proxy_pool_size",
				Help: "Live proxies currently in the pool.",
			},
		)

		proxyEvictionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "serpcrawl_proxy_evictions_total",
				Help: "Proxies removed from the pool after a failed fetch.",
			},
		)

		proxyValidationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpcrawl_proxy_validations_total",
				Help: "Proxy probes, labeled by result.",
			},
			[]string{"result"},
		)

		resultsAppendedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "serpcrawl_results_appended_total",
				Help: "New results written to the result store.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serpcrawl_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpcrawl_http_requests_total",
				Help: "Status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serpcrawl_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a page reaching a terminal status.
func ObservePage(status string) {
	Init()
	pagesTotal.WithLabelValues(status).Inc()
}

// ObserveFetchAttempt counts one transport attempt.
func ObserveFetchAttempt(site string, proxied bool, err error, bytesFetched int) {
	Init()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	route := "direct"
	if proxied {
		route = "proxy"
	}
	fetchAttemptsTotal.WithLabelValues(outcome, route).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// SetProxyPoolSize records the live pool size.
func SetProxyPoolSize(n int) {
	Init()
	proxyPoolSize.Set(float64(n))
}

// ObserveProxyEviction counts a proxy removed from the pool.
func ObserveProxyEviction() {
	Init()
	proxyEvictionsTotal.Inc()
}

// ObserveProxyValidation counts one probe.
func ObserveProxyValidation(healthy bool) {
	Init()
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	proxyValidationsTotal.WithLabelValues(result).Inc()
}

// ObserveResultsAppended counts rows written to the result store.
func ObserveResultsAppended(n int) {
	Init()
	if n > 0 {
		resultsAppendedTotal.Add(float64(n))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the status server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
