package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the aggregated view served on the status endpoint.
type Snapshot struct {
	RunID           string    `json:"runId"`
	Query           string    `json:"query"`
	Stage           Stage     `json:"stage"`
	CurrentPage     int       `json:"currentPage"`
	TotalPages      int       `json:"totalPages"`
	PagesFetched    int       `json:"pagesFetched"`
	PagesAbandoned  int       `json:"pagesAbandoned"`
	ResultsAppended int       `json:"resultsAppended"`
	ResultsTotal    int       `json:"resultsTotal"`
	ProxyPoolSize   int       `json:"proxyPoolSize"`
	Err             string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// PoolSizer reports the live proxy count.
type PoolSizer interface {
	Size() int
}

// Tracker folds events into a Snapshot. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	seen   bool
	pool   PoolSizer
	logger *zap.Logger
}

// NewTracker builds a Tracker. pool may be nil.
func NewTracker(pool PoolSizer, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{pool: pool, logger: logger}
}

// Emit validates evt and folds it into the snapshot. Invalid events are logged and dropped.
func (t *Tracker) Emit(evt Event) {
	if err := evt.Validate(); err != nil {
		t.logger.Warn("dropping invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if evt.Stage == StageRunStart || t.snap.RunID != evt.RunID {
		t.snap = Snapshot{RunID: evt.RunID, StartedAt: evt.TS}
	}
	t.seen = true
	t.snap.Query = evt.Query
	t.snap.Stage = evt.Stage
	t.snap.CurrentPage = evt.CurrentPage
	t.snap.TotalPages = evt.TotalPages
	t.snap.PagesFetched += evt.PagesFetched
	t.snap.PagesAbandoned += evt.PagesAbandoned
	t.snap.ResultsAppended += evt.ResultsAppended
	t.snap.ResultsTotal = evt.ResultsTotal
	t.snap.ProxyPoolSize = evt.ProxyPoolSize
	t.snap.Err = evt.Err
	t.snap.UpdatedAt = evt.TS
	t.logger.Debug("progress",
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
		zap.Int("current_page", evt.CurrentPage),
		zap.Int("total_pages", evt.TotalPages),
	)
}

// Snapshot returns the latest state. ok is false before the first event.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := t.snap
	if t.pool != nil {
		snap.ProxyPoolSize = t.pool.Size()
	}
	return snap, t.seen
}
