package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageBatchDone Stage = "BATCH_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// Event captures one crawl milestone.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	Query string
	// CurrentPage and TotalPages mirror the checkpoint after the milestone.
	CurrentPage     int
	TotalPages      int
	PagesFetched    int
	PagesAbandoned  int
	ResultsAppended int
	ResultsTotal    int
	ProxyPoolSize   int
	Err             string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageBatchDone, StageRunDone:
	case StageRunError:
		if e.Err == "" {
			return errors.New("run error requires a message")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.CurrentPage > e.TotalPages && e.TotalPages > 0 {
		return fmt.Errorf("current page %d beyond total %d", e.CurrentPage, e.TotalPages)
	}
	return nil
}

// Emitter publishes individual events.
type Emitter interface {
	Emit(evt Event)
}

// Nop discards events.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(Event) {}
