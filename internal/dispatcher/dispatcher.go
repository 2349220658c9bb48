// Package dispatcher fans page tasks out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Processor runs the per-page algorithm. *worker.Worker satisfies it.
type Processor interface {
	Process(ctx context.Context, task crawler.PageTask, source crawler.SourceConfig) crawler.PageOutcome
}

// Config sizes the fetch pool.
type Config struct {
	Concurrency int
	MaxRetries  int
}

// Dispatcher runs page tasks with bounded parallelism.
type Dispatcher struct {
	processor Processor
	cfg       Config
	logger    *zap.Logger
}

// New creates a Dispatcher. Concurrency defaults to 5.
func New(processor Processor, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{processor: processor, cfg: cfg, logger: logger}
}

// FetchPages processes every page index and returns one outcome per page in completion order.
// Once ctx is canceled or a worker reports that no proxies are left, the remaining pages are
// not started and come back Interrupted.
func (d *Dispatcher) FetchPages(
	ctx context.Context,
	query string,
	pages []int,
	source crawler.SourceConfig,
) []crawler.PageOutcome {
	var (
		mu       sync.Mutex
		outcomes = make([]crawler.PageOutcome, 0, len(pages))
		halted   atomic.Bool
	)
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)

	record := func(outcome crawler.PageOutcome) {
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	}
	scheduled := 0
	for _, page := range pages {
		if ctx.Err() != nil || halted.Load() {
			break
		}
		task := crawler.PageTask{PageIndex: page, Query: query, RetriesRemaining: d.cfg.MaxRetries}
		g.Go(func() error {
			// The slot may open after a sibling has already halted the batch.
			if ctx.Err() != nil || halted.Load() {
				record(interrupted(task.PageIndex, haltReason(ctx)))
				return nil
			}
			outcome := d.processor.Process(ctx, task, source)
			if errors.Is(outcome.Err, crawler.ErrNoProxies) {
				halted.Store(true)
			}
			record(outcome)
			return nil
		})
		scheduled++
	}
	_ = g.Wait()

	if rest := pages[scheduled:]; len(rest) > 0 {
		reason := haltReason(ctx)
		d.logger.Warn("pages left unscheduled", zap.Ints("pages", rest), zap.Error(reason))
		for _, page := range rest {
			outcomes = append(outcomes, interrupted(page, reason))
		}
	}
	return outcomes
}

func haltReason(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return crawler.ErrNoProxies
}

func interrupted(page int, reason error) crawler.PageOutcome {
	return crawler.PageOutcome{
		PageIndex:   page,
		Err:         fmt.Errorf("page %d not scheduled: %w", page, reason),
		Interrupted: true,
	}
}
