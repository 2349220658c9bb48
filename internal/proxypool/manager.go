package proxypool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Source yields raw host:port candidates from one proxy listing.
type Source interface {
	Name() string
	Candidates(ctx context.Context) ([]string, error)
}

// Collect pulls candidates from every source concurrently and returns the deduplicated union.
// A failing source is logged and skipped; an empty union is only a warning.
func Collect(ctx context.Context, logger *zap.Logger, sources ...Source) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = make(map[string]struct{})
		ordered []string
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			candidates, err := src.Candidates(ctx)
			if err != nil {
				logger.Warn("proxy source failed", zap.String("source", src.Name()), zap.Error(err))
				return
			}
			logger.Info("proxy source scraped", zap.String("source", src.Name()), zap.Int("count", len(candidates)))
			mu.Lock()
			defer mu.Unlock()
			for _, c := range candidates {
				c = strings.TrimSpace(c)
				if c == "" {
					continue
				}
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				ordered = append(ordered, c)
			}
		}(src)
	}
	wg.Wait()
	if len(ordered) == 0 {
		logger.Warn("no proxy candidates collected", zap.Int("sources", len(sources)))
	}
	return ordered
}

// ManagerConfig decides how the pool is assembled.
type ManagerConfig struct {
	ProbeURL string
	// Required turns an empty pool into ErrNoProxies.
	Required bool
	// SkipValidation trusts the sources, e.g. operator-supplied proxies.
	SkipValidation bool
}

// Manager runs collect, validate, build.
type Manager struct {
	cfg       ManagerConfig
	sources   []Source
	validator *Validator
	logger    *zap.Logger
}

// NewManager wires sources to a validator.
func NewManager(cfg ManagerConfig, validator *Validator, logger *zap.Logger, sources ...Source) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewValidator(ValidatorConfig{}, logger)
	}
	return &Manager{cfg: cfg, sources: sources, validator: validator, logger: logger}
}

// Build returns a pool of validated proxies. An empty pool is returned without error
// unless proxies are required.
func (m *Manager) Build(ctx context.Context) (*Pool, error) {
	candidates := Collect(ctx, m.logger, m.sources...)
	healthy := candidates
	if !m.cfg.SkipValidation && len(candidates) > 0 {
		healthy = m.validator.ValidateAll(ctx, candidates, m.cfg.ProbeURL)
	}
	pool := NewPool(healthy...)
	if pool.Size() == 0 {
		if m.cfg.Required {
			return pool, fmt.Errorf("build proxy pool from %d candidates: %w", len(candidates), crawler.ErrNoProxies)
		}
		m.logger.Warn("proxy pool is empty, fetching without proxies")
	}
	return pool, nil
}
