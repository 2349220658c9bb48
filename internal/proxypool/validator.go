package proxypool

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/metrics"
)

// ValidatorConfig bounds proxy probing.
type ValidatorConfig struct {
	Timeout     time.Duration
	Concurrency int
	UserAgent   string
}

// Validator probes candidates through a known-reachable URL.
type Validator struct {
	cfg    ValidatorConfig
	logger *zap.Logger
}

// NewValidator builds a Validator. Defaults: 5s timeout, 10 concurrent probes.
func NewValidator(cfg ValidatorConfig, logger *zap.Logger) *Validator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, logger: logger}
}

// Validate issues one GET to probeURL through address. Only a 2xx answer counts as healthy.
func (v *Validator) Validate(ctx context.Context, address, probeURL string) bool {
	err := v.probe(ctx, address, probeURL)
	if err != nil {
		v.logger.Debug("proxy rejected", zap.String("proxy", address), zap.Error(err))
		metrics.ObserveProxyValidation(false)
		return false
	}
	metrics.ObserveProxyValidation(true)
	return true
}

// ValidateAll probes candidates with bounded parallelism and returns the healthy ones in input order.
func (v *Validator) ValidateAll(ctx context.Context, candidates []string, probeURL string) []string {
	healthy := make([]bool, len(candidates))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Concurrency)
	for i, addr := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ok := v.Validate(gctx, addr, probeURL)
			mu.Lock()
			healthy[i] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(candidates))
	for i, ok := range healthy {
		if ok {
			out = append(out, candidates[i])
		}
	}
	v.logger.Info("proxy validation finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("healthy", len(out)),
	)
	return out
}

func (v *Validator) probe(ctx context.Context, address, probeURL string) error {
	proxyURL, err := crawler.ProxyURL(address)
	if err != nil {
		return err
	}
	transport := &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		DialContext: (&net.Dialer{
			Timeout: v.cfg.Timeout,
		}).DialContext,
		TLSHandshakeTimeout: v.cfg.Timeout,
		DisableKeepAlives:   true,
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: v.cfg.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	if v.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", v.cfg.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe via %s: %w", address, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &crawler.StatusError{Code: resp.StatusCode, URL: probeURL}
	}
	return nil
}
