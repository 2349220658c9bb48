// Package api hosts the optional status server that runs next to a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live run snapshot.
//   - GET /v1/proxies for the live and evicted proxy counts.
package api
