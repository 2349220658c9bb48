package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/api"
	"github.com/JakeFAU/serp-crawler/internal/checkpoint"
	"github.com/JakeFAU/serp-crawler/internal/config"
	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/detector"
	"github.com/JakeFAU/serp-crawler/internal/dispatcher"
	"github.com/JakeFAU/serp-crawler/internal/engine"
	"github.com/JakeFAU/serp-crawler/internal/extract"
	"github.com/JakeFAU/serp-crawler/internal/id/uuid"
	"github.com/JakeFAU/serp-crawler/internal/identity"
	"github.com/JakeFAU/serp-crawler/internal/metrics"
	"github.com/JakeFAU/serp-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/serp-crawler/internal/progress"
	"github.com/JakeFAU/serp-crawler/internal/sink"
	"github.com/JakeFAU/serp-crawler/internal/worker"
)

type crawlFlags struct {
	query     string
	startPage int
	pages     int
	resume    bool
	fresh     bool
	engine    string
	transport string
	proxies   []string
}

func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a range of result pages for one query",
		Long: `Fetches result pages [start-page, pages) for the query through the proxy pool,
appends new results to the configured output and checkpoints after every batch.
A matching checkpoint is resumed; without --resume or --fresh you are asked first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.resume && flags.fresh {
				return fmt.Errorf("--resume and --fresh are mutually exclusive")
			}
			return runCrawl(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.query, "query", "q", "", "search query (prompted when empty)")
	f.IntVar(&flags.startPage, "start-page", 0, "first page index, 0-based")
	f.IntVarP(&flags.pages, "pages", "n", 0, "page index to stop before; may extend a resumed run")
	f.BoolVar(&flags.resume, "resume", false, "resume a matching checkpoint without asking")
	f.BoolVar(&flags.fresh, "fresh", false, "discard any stored checkpoint")
	f.StringVar(&flags.engine, "engine", "", "source preset (pubmed, scholar, google); replaces the configured source")
	f.StringVar(&flags.transport, "transport", "", "fetch transport override (http or browser)")
	f.StringSliceVar(&flags.proxies, "proxy", nil, "extra host:port proxies, repeatable")
	return cmd
}

func runCrawl(cmd *cobra.Command, flags crawlFlags) error {
	ctx := cmd.Context()
	cfg := configFrom(ctx)
	logger := loggerFrom(ctx)

	if flags.engine != "" {
		if err := cfg.UsePreset(flags.engine); err != nil {
			return err
		}
	}
	if flags.transport != "" {
		cfg.Fetch.Transport = flags.transport
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()
	if strings.TrimSpace(flags.query) == "" {
		q, err := ask(in, out, "Search query: ")
		if err != nil {
			return err
		}
		flags.query = q
	}

	checkpoints, closeCheckpoints, err := buildCheckpointStore(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	defer closeCheckpoints()

	resuming, err := decideResume(ctx, checkpoints, in, out, flags, cfg.Source.SourceConfig)
	if err != nil {
		return err
	}
	flags.fresh = !resuming
	if !resuming && flags.pages <= 0 {
		n, err := askInt(in, out, "Number of pages to crawl: ")
		if err != nil {
			return err
		}
		flags.pages = flags.startPage + n
	}

	metrics.Init()
	identities := identity.NewRotator(cfg.Fetch.UserAgents, 0)
	pool, err := buildProxyPool(ctx, cfg, flags.proxies, identities.UserAgent(), logger)
	if err != nil {
		return err
	}
	tracker := progress.NewTracker(pool, logger.Named("progress"))
	var ready atomic.Bool
	stopServer := startStatusServer(ctx, cfg, tracker, pool, ready.Load, logger)
	defer stopServer()

	transport, closeTransport, err := buildTransport(cfg, identities.UserAgent())
	if err != nil {
		return err
	}
	defer closeTransport()

	results, closeResults, err := buildResultStore(ctx, cfg, flags.query, logger)
	if err != nil {
		return err
	}
	defer closeResults()

	publisher, closePublisher, err := buildPublisher(ctx, cfg.PubSub)
	if err != nil {
		return err
	}
	defer closePublisher()

	var blockDetector crawler.BlockDetector
	if cfg.Fetch.DetectChallenges {
		blockDetector = detector.NewHeuristic(0)
	}
	w := worker.New(
		transport,
		extract.New(),
		pool,
		identities,
		ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Fetch.RatePerSecond, DefaultBurst: cfg.Fetch.Burst}),
		buildBackoff(cfg.Retry),
		crawler.TimerPauser{},
		worker.Config{
			MaxRetries:     cfg.Fetch.MaxRetries,
			Timeout:        cfg.Fetch.Timeout,
			FallbackDirect: cfg.Fetch.FallbackDirect,
			RequireProxy:   cfg.Proxy.Required,
			Politeness:     crawler.Politeness{Min: cfg.Politeness.Min, Max: cfg.Politeness.Max},
			Detector:       blockDetector,
		},
		logger.Named("worker"),
	)
	d := dispatcher.New(w, dispatcher.Config{
		Concurrency: cfg.Fetch.Concurrency,
		MaxRetries:  cfg.Fetch.MaxRetries,
	}, logger.Named("dispatcher"))
	resultSink := sink.New(results, publisher, sink.Options{Query: flags.query}, logger.Named("sink"))
	eng := engine.New(d, checkpoints, resultSink, uuid.New(), engine.Config{
		Source:    cfg.Source.SourceConfig,
		BatchSize: cfg.BatchSize(),
	}, logger.Named("engine"), engine.WithEmitter(tracker), engine.WithPool(pool))
	ready.Store(true)

	summary, err := eng.Run(ctx, engine.Request{
		Query:      flags.query,
		StartPage:  flags.startPage,
		TotalPages: flags.pages,
		Fresh:      flags.fresh,
		Resume:     flags.resume,
	})
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

// decideResume reports whether a stored checkpoint will be resumed. It asks on in when
// neither --resume nor --fresh settles it.
func decideResume(
	ctx context.Context,
	store crawler.CheckpointStore,
	in *bufio.Reader,
	out io.Writer,
	flags crawlFlags,
	source crawler.SourceConfig,
) (bool, error) {
	if flags.fresh {
		return false, nil
	}
	stored, err := store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if stored == nil {
		return false, nil
	}
	if !checkpoint.Matches(stored, flags.query, source) {
		if flags.resume {
			return false, fmt.Errorf("resume %q: %w", flags.query, checkpoint.ErrCheckpointMismatch)
		}
		discard, err := confirm(in, out, fmt.Sprintf(
			"A checkpoint for %q exists at page %d. Discard it and start fresh? [y/N] ",
			stored.Query, stored.CurrentPage), false)
		if err != nil {
			return false, err
		}
		if !discard {
			return false, checkpoint.ErrCheckpointMismatch
		}
		return false, nil
	}
	if flags.resume {
		return true, nil
	}
	return confirm(in, out, fmt.Sprintf(
		"Resume %q from page %d of %d (%d results so far)? [Y/n] ",
		stored.Query, stored.CurrentPage, stored.TotalPages, len(stored.AccumulatedResults)), true)
}

func startStatusServer(
	ctx context.Context,
	cfg config.Config,
	tracker *progress.Tracker,
	pool progress.PoolSizer,
	ready func() bool,
	logger *zap.Logger,
) func() {
	if !cfg.Server.Enabled {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	server := api.NewServer(tracker, api.Options{APIKey: cfg.Server.APIKey, Ready: ready, Pool: pool}, logger.Named("api"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
			logger.Error("status server stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func printSummary(w io.Writer, s engine.Summary) {
	if s.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run %s: pages %d/%d, fetched %d, abandoned %d, new results %d, total %d\n",
		s.RunID, s.CurrentPage, s.TotalPages, s.PagesFetched, s.PagesAbandoned, s.ResultsAppended, s.ResultsTotal)
	if len(s.FailedPages) > 0 {
		fmt.Fprintf(w, "failed pages: %v\n", s.FailedPages)
	}
}

func ask(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", fmt.Errorf("no answer to %q", strings.TrimSpace(prompt))
	}
	return answer, nil
}

func askInt(in *bufio.Reader, out io.Writer, prompt string) (int, error) {
	answer, err := ask(in, out, prompt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("expected a positive number, got %q", answer)
	}
	return n, nil
}

func confirm(in *bufio.Reader, out io.Writer, prompt string, def bool) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
