package checkpoint

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// ErrCheckpointMismatch means the stored checkpoint belongs to another query or engine.
var ErrCheckpointMismatch = errors.New("checkpoint does not match request")

// Request is what the caller wants crawled.
type Request struct {
	Query      string
	Source     crawler.SourceConfig
	StartPage  int
	TotalPages int
	// Fresh discards any stored checkpoint.
	Fresh bool
}

// Plan is the work left for a run.
type Plan struct {
	Checkpoint crawler.Checkpoint
	Pages      []int
	Resumed    bool
}

// Matches reports whether cp was produced by the same query against the same engine.
func Matches(cp *crawler.Checkpoint, query string, source crawler.SourceConfig) bool {
	if cp == nil {
		return false
	}
	return cp.Query == query && cp.Config.BaseURL == source.BaseURL
}

// NewPlan decides the page range for req given the stored checkpoint, which may be nil.
// A matching checkpoint is resumed from its CurrentPage with its results carried forward;
// a mismatching one is only replaced when req.Fresh is set.
func NewPlan(cp *crawler.Checkpoint, req Request) (Plan, error) {
	if req.Query == "" {
		return Plan{}, fmt.Errorf("plan crawl: query is required")
	}
	if cp != nil && !req.Fresh {
		if !Matches(cp, req.Query, req.Source) {
			return Plan{}, fmt.Errorf(
				"stored query %q on %s, requested %q on %s: %w",
				cp.Query, cp.Config.BaseURL, req.Query, req.Source.BaseURL, ErrCheckpointMismatch,
			)
		}
		resumed := *cp
		resumed.Config = req.Source
		if req.TotalPages > resumed.TotalPages {
			resumed.TotalPages = req.TotalPages
		}
		resumed.AccumulatedResults = append([]crawler.SearchResult(nil), cp.AccumulatedResults...)
		resumed.FailedPages = append([]int(nil), cp.FailedPages...)
		return Plan{
			Checkpoint: resumed,
			Pages:      pageRange(resumed.CurrentPage, resumed.TotalPages),
			Resumed:    true,
		}, nil
	}

	if req.StartPage < 0 {
		return Plan{}, fmt.Errorf("plan crawl: start page must be >= 0, got %d", req.StartPage)
	}
	if req.TotalPages <= req.StartPage {
		return Plan{}, fmt.Errorf("plan crawl: total pages %d must exceed start page %d", req.TotalPages, req.StartPage)
	}
	fresh := crawler.Checkpoint{
		Query:       req.Query,
		Config:      req.Source,
		StartPage:   req.StartPage,
		TotalPages:  req.TotalPages,
		CurrentPage: req.StartPage,
	}
	return Plan{Checkpoint: fresh, Pages: pageRange(req.StartPage, req.TotalPages)}, nil
}

func pageRange(from, to int) []int {
	if to <= from {
		return nil
	}
	pages := make([]int, 0, to-from)
	for p := from; p < to; p++ {
		pages = append(pages, p)
	}
	return pages
}
