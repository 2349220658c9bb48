package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/checkpoint"
	"github.com/JakeFAU/serp-crawler/internal/checkpoint/gcs"
	"github.com/JakeFAU/serp-crawler/internal/config"
	"github.com/JakeFAU/serp-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/serp-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/serp-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/serp-crawler/internal/proxypool"
	"github.com/JakeFAU/serp-crawler/internal/proxypool/sources"
	"github.com/JakeFAU/serp-crawler/internal/sink"
	"github.com/JakeFAU/serp-crawler/internal/sink/postgres"
	"github.com/JakeFAU/serp-crawler/internal/sink/pubsub"
	"github.com/JakeFAU/serp-crawler/internal/sink/sqlite"
)

// closer releases a backend; it is never nil.
type closer func()

func noClose() {}

// proxySources turns the configured listing names, file and static addresses into sources.
func proxySources(cfg config.Config, extra []string, userAgent string, logger *zap.Logger) ([]proxypool.Source, error) {
	timeout := cfg.Fetch.Timeout
	var out []proxypool.Source
	for _, name := range cfg.Proxy.Sources {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "sslproxies":
			out = append(out, withTable(sources.SSLProxies, userAgent, timeout))
		case "free-proxy-list":
			out = append(out, withTable(sources.FreeProxyList, userAgent, timeout))
		case "us-proxy":
			out = append(out, withTable(sources.USProxy, userAgent, timeout))
		case "proxy-list-download":
			src := sources.ProxyListDownload
			src.UserAgent, src.Timeout = userAgent, timeout
			out = append(out, src)
		default:
			return nil, fmt.Errorf("unknown proxy source %q", name)
		}
	}
	if cfg.Proxy.File != "" {
		out = append(out, sources.File{Path: cfg.Proxy.File, Logger: logger})
	}
	if static := append(append([]string(nil), cfg.Proxy.Static...), extra...); len(static) > 0 {
		out = append(out, sources.Static(static))
	}
	return out, nil
}

func withTable(t sources.Table, userAgent string, timeout time.Duration) sources.Table {
	t.UserAgent = userAgent
	t.Timeout = timeout
	return t
}

// buildProxyPool collects and validates proxies. A disabled pool is empty, which makes
// every fetch direct.
func buildProxyPool(
	ctx context.Context,
	cfg config.Config,
	extra []string,
	userAgent string,
	logger *zap.Logger,
) (*proxypool.Pool, error) {
	if !cfg.Proxy.Enabled {
		logger.Info("proxies disabled, fetching directly")
		return proxypool.NewPool(), nil
	}
	srcs, err := proxySources(cfg, extra, userAgent, logger)
	if err != nil {
		return nil, err
	}
	validator := proxypool.NewValidator(proxypool.ValidatorConfig{
		Timeout:     cfg.Proxy.ValidationTimeout,
		Concurrency: cfg.Proxy.ValidationConcurrency,
		UserAgent:   userAgent,
	}, logger.Named("validator"))
	manager := proxypool.NewManager(proxypool.ManagerConfig{
		ProbeURL:       cfg.Source.ProbeURL(),
		Required:       cfg.Proxy.Required,
		SkipValidation: !cfg.Proxy.Validate,
	}, validator, logger.Named("proxypool"), srcs...)

	stop := startSpinner(" collecting and validating proxies")
	pool, err := manager.Build(ctx)
	stop()
	if err != nil {
		return nil, err
	}
	logger.Info("proxy pool ready", zap.Int("healthy", pool.Size()))
	return pool, nil
}

// startSpinner shows progress on stderr when it is a terminal.
func startSpinner(suffix string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}

func buildTransport(cfg config.Config, userAgent string) (crawler.Transport, closer, error) {
	switch cfg.Fetch.Transport {
	case config.TransportBrowser:
		fetcher, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         userAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
			SettleMin:         cfg.Headless.SettleMin,
			SettleMax:         cfg.Headless.SettleMax,
			ExecPath:          cfg.Headless.ExecPath,
		})
		if err != nil {
			return nil, noClose, fmt.Errorf("create browser transport: %w", err)
		}
		return fetcher, fetcher.Close, nil
	default:
		return collyfetcher.New(collyfetcher.Config{UserAgent: userAgent, Timeout: cfg.Fetch.Timeout}), noClose, nil
	}
}

func buildBackoff(cfg config.RetryConfig) crawler.BackoffPolicy {
	if cfg.Mode == "random" {
		return crawler.NewRandomBackoff(cfg.MinDelay, cfg.MaxDelay)
	}
	return crawler.NewExponentialBackoff(cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter)
}

func buildCheckpointStore(ctx context.Context, cfg config.CheckpointConfig, logger *zap.Logger) (crawler.CheckpointStore, closer, error) {
	logger = logger.Named("checkpoint")
	if cfg.Backend == "gcs" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, noClose, fmt.Errorf("create storage client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Object: cfg.GCSObject}, logger)
		if err != nil {
			_ = client.Close()
			return nil, noClose, err
		}
		logger.Info("using gcs checkpoint", zap.String("uri", store.URI()))
		return store, func() { _ = client.Close() }, nil
	}
	store, err := checkpoint.NewFileStore(cfg.Path, logger)
	if err != nil {
		return nil, noClose, err
	}
	logger.Info("using file checkpoint", zap.String("path", store.Path()))
	return store, noClose, nil
}

func buildResultStore(
	ctx context.Context,
	cfg config.Config,
	query string,
	logger *zap.Logger,
) (crawler.ResultStore, closer, error) {
	switch cfg.Output.Backend {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Output.Postgres.DSN,
			Table:           cfg.Output.Postgres.Table,
			MaxConns:        cfg.Output.Postgres.MaxConns,
			MaxConnLifetime: cfg.Output.Postgres.MaxConnLifetime,
		}, query)
		if err != nil {
			return nil, noClose, err
		}
		return store, store.Close, nil
	case "sqlite":
		store, err := sqlite.New(ctx, cfg.Output.SQLitePath, query)
		if err != nil {
			return nil, noClose, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		path := sink.ResolvePath(cfg.Output.CSVPath, time.Now())
		store, err := sink.NewCSVStore(path, cfg.Source.Extraction.FieldNames())
		if err != nil {
			return nil, noClose, err
		}
		logger.Info("writing results", zap.String("csv", store.Path()))
		return store, noClose, nil
	}
}

// buildPublisher returns a nil Publisher when Pub/Sub is disabled.
func buildPublisher(ctx context.Context, cfg config.PubSubConfig) (crawler.Publisher, closer, error) {
	if !cfg.Enabled {
		return nil, noClose, nil
	}
	publisher, err := pubsub.Dial(ctx, cfg.ProjectID, cfg.TopicName)
	if err != nil {
		return nil, noClose, err
	}
	return publisher, func() { _ = publisher.Close() }, nil
}
