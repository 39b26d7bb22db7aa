package ports

import (
	"context"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

// RunRecord summarizes one recorded batch run.
type RunRecord struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Succeeded   int
	Failed      int
	Concurrency int
}

// ItemRecord is the persisted outcome of one item in a run.
type ItemRecord struct {
	RunID       string
	Index       int
	URL         string
	Success     bool
	Stage       string
	Kind        string
	Message     string
	Title       string
	Attempts    int
	Cached      bool
	Elapsed     time.Duration
	OutputFiles []string
}

// HistoryStore persists batch runs.
type HistoryStore interface {
	BeginRun(ctx context.Context, run RunRecord) error
	RecordItem(ctx context.Context, runID string, result domain.ItemResult) error
	FinishRun(ctx context.Context, runID string, report *domain.BatchReport) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RunItems(ctx context.Context, runID string) ([]ItemRecord, error)
}
