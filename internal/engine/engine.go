// Package engine coordinates a crawl run: it plans pages from the checkpoint, fetches them
// in batches, appends new results and checkpoints after every batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/checkpoint"
	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/progress"
	"github.com/JakeFAU/serp-crawler/internal/sink"
)

// PageFetcher runs one batch of pages. *dispatcher.Dispatcher satisfies it.
type PageFetcher interface {
	FetchPages(ctx context.Context, query string, pages []int, source crawler.SourceConfig) []crawler.PageOutcome
}

// ResultWriter appends results not seen before. *sink.Sink satisfies it.
type ResultWriter interface {
	Write(ctx context.Context, results []crawler.SearchResult) ([]crawler.SearchResult, error)
}

type runLabeler interface {
	SetRunID(runID string)
}

// Config controls batching and the engine preset being crawled.
type Config struct {
	Source    crawler.SourceConfig
	BatchSize int
}

// Request is one invocation of the crawler.
type Request struct {
	Query      string
	StartPage  int
	TotalPages int
	// Fresh discards any stored checkpoint; Resume only affects logging since a matching
	// checkpoint is always resumed unless Fresh is set.
	Fresh  bool
	Resume bool
}

// Summary reports what a run did.
type Summary struct {
	RunID           string
	Resumed         bool
	PagesFetched    int
	PagesAbandoned  int
	ResultsAppended int
	ResultsTotal    int
	CurrentPage     int
	TotalPages      int
	FailedPages     []int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the checkpoint timestamp source.
func WithClock(clock crawler.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithEmitter reports progress milestones.
func WithEmitter(emitter progress.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithPool reports the live proxy count in progress events.
func WithPool(pool progress.PoolSizer) Option {
	return func(e *Engine) { e.pool = pool }
}

// Engine is the single writer of the checkpoint.
type Engine struct {
	fetcher     PageFetcher
	checkpoints crawler.CheckpointStore
	results     ResultWriter
	ids         crawler.IDGenerator
	clock       crawler.Clock
	emitter     progress.Emitter
	pool        progress.PoolSizer
	cfg         Config
	logger      *zap.Logger
}

// New wires an Engine. BatchSize defaults to 5.
func New(
	fetcher PageFetcher,
	checkpoints crawler.CheckpointStore,
	results ResultWriter,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		results:     results,
		ids:         ids,
		clock:       crawler.SystemClock{},
		emitter:     progress.Nop{},
		cfg:         cfg,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run crawls the pages req still needs. The checkpoint is saved after every batch, so an
// interrupted run can resume where it stopped. Only storage failures, pool exhaustion and
// cancellation are returned as errors; failed pages are recorded and skipped.
func (e *Engine) Run(ctx context.Context, req Request) (Summary, error) {
	stored, err := e.checkpoints.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if req.Resume && stored == nil {
		e.logger.Info("no checkpoint to resume, starting fresh")
	}
	plan, err := checkpoint.NewPlan(stored, checkpoint.Request{
		Query:      req.Query,
		Source:     e.cfg.Source,
		StartPage:  req.StartPage,
		TotalPages: req.TotalPages,
		Fresh:      req.Fresh,
	})
	if err != nil {
		return Summary{}, err
	}

	cp := plan.Checkpoint
	if cp.RunID == "" {
		id, err := e.ids.NewID()
		if err != nil {
			return Summary{}, fmt.Errorf("generate run id: %w", err)
		}
		cp.RunID = id
	}
	if labeler, ok := e.results.(runLabeler); ok {
		labeler.SetRunID(cp.RunID)
	}
	logger := e.logger.With(zap.String("run_id", cp.RunID), zap.String("query", cp.Query))

	summary := Summary{RunID: cp.RunID, Resumed: plan.Resumed}
	summary.sync(cp)
	logger.Info("crawl planned",
		zap.Bool("resumed", plan.Resumed),
		zap.Int("current_page", cp.CurrentPage),
		zap.Int("total_pages", cp.TotalPages),
		zap.Int("pending_pages", len(plan.Pages)),
		zap.Int("carried_results", len(cp.AccumulatedResults)),
	)
	e.emit(progress.StageRunStart, cp, batchStats{}, nil)

	if err := e.save(ctx, &cp); err != nil {
		return summary, err
	}

	for start := 0; start < len(plan.Pages); start += e.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+e.cfg.BatchSize, len(plan.Pages))
		batch := plan.Pages[start:end]

		outcomes := e.fetcher.FetchPages(ctx, cp.Query, batch, cp.Config)
		stats := tally(batch, outcomes)
		found := crawler.Flatten(outcomes)

		appended, err := e.results.Write(context.WithoutCancel(ctx), found)
		if err != nil {
			e.emit(progress.StageRunError, cp, stats, err)
			return summary, fmt.Errorf("write results for pages %d-%d: %w", batch[0], batch[len(batch)-1], err)
		}
		stats.appended = len(appended)

		cp.AccumulatedResults = append(cp.AccumulatedResults, sink.Merge(found, cp.AccumulatedResults)...)
		cp.Advance(stats.next)
		cp.FailedPages = mergePages(cp.FailedPages, stats.abandoned)
		if err := e.save(ctx, &cp); err != nil {
			e.emit(progress.StageRunError, cp, stats, err)
			return summary, err
		}

		summary.PagesFetched += stats.fetched
		summary.PagesAbandoned += len(stats.abandoned)
		summary.ResultsAppended += stats.appended
		summary.sync(cp)
		logger.Info("batch checkpointed",
			zap.Ints("pages", batch),
			zap.Int("fetched", stats.fetched),
			zap.Ints("abandoned", stats.abandoned),
			zap.Int("appended", stats.appended),
			zap.Int("current_page", cp.CurrentPage),
		)
		e.emit(progress.StageBatchDone, cp, stats, nil)

		if stats.noProxies {
			err := fmt.Errorf("crawl stopped at page %d: %w", cp.CurrentPage, crawler.ErrNoProxies)
			logger.Error("proxy pool exhausted", zap.Error(err))
			e.emit(progress.StageRunError, cp, batchStats{}, err)
			return summary, err
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("crawl interrupted", zap.Int("current_page", cp.CurrentPage))
		e.emit(progress.StageRunError, cp, batchStats{}, err)
		return summary, fmt.Errorf("crawl interrupted at page %d: %w", cp.CurrentPage, err)
	}
	logger.Info("crawl finished",
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("pages_abandoned", summary.PagesAbandoned),
		zap.Int("results_appended", summary.ResultsAppended),
	)
	e.emit(progress.StageRunDone, cp, batchStats{}, nil)
	return summary, nil
}

// save persists cp even when ctx is already canceled so an interrupt still records progress.
func (e *Engine) save(ctx context.Context, cp *crawler.Checkpoint) error {
	cp.UpdatedAt = e.clock.Now()
	if err := e.checkpoints.Save(context.WithoutCancel(ctx), *cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) emit(stage progress.Stage, cp crawler.Checkpoint, stats batchStats, err error) {
	evt := progress.Event{
		RunID:           cp.RunID,
		TS:              e.clock.Now(),
		Stage:           stage,
		Query:           cp.Query,
		CurrentPage:     min(cp.CurrentPage, cp.TotalPages),
		TotalPages:      cp.TotalPages,
		PagesFetched:    stats.fetched,
		PagesAbandoned:  len(stats.abandoned),
		ResultsAppended: stats.appended,
		ResultsTotal:    len(cp.AccumulatedResults),
	}
	if e.pool != nil {
		evt.ProxyPoolSize = e.pool.Size()
	}
	if err != nil {
		evt.Err = err.Error()
	}
	e.emitter.Emit(evt)
}

func (s *Summary) sync(cp crawler.Checkpoint) {
	s.CurrentPage = cp.CurrentPage
	s.TotalPages = cp.TotalPages
	s.ResultsTotal = len(cp.AccumulatedResults)
	s.FailedPages = append([]int(nil), cp.FailedPages...)
}

type batchStats struct {
	next      int
	fetched   int
	appended  int
	abandoned []int
	noProxies bool
}

// tally folds a batch's outcomes. next is the page after the batch, or the first
// interrupted page so that it is scheduled again.
func tally(batch []int, outcomes []crawler.PageOutcome) batchStats {
	stats := batchStats{next: batch[len(batch)-1] + 1}
	for _, o := range outcomes {
		switch {
		case o.Interrupted:
			stats.next = min(stats.next, o.PageIndex)
			if errors.Is(o.Err, crawler.ErrNoProxies) {
				stats.noProxies = true
			}
		case o.Abandoned():
			stats.abandoned = append(stats.abandoned, o.PageIndex)
		case o.Succeeded():
			stats.fetched++
		}
	}
	sort.Ints(stats.abandoned)
	return stats
}

func mergePages(existing, added []int) []int {
	if len(added) == 0 {
		return existing
	}
	seen := make(map[int]struct{}, len(existing)+len(added))
	out := make([]int, 0, len(existing)+len(added))
	for _, p := range append(append([]int(nil), existing...), added...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
