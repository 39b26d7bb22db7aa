package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
	"github.com/devbush/vdraft/internal/ports"
)

// ProcessorFactory builds a processor whose stage events go to sink.
type ProcessorFactory func(sink EventSink) ItemProcessor

// BatchOptions configures one batch run.
type BatchOptions struct {
	Concurrency int
	Display     DisplayFunc // optional
}

// BatchService runs batches end to end: progress, scheduling and history.
type BatchService struct {
	newProcessor ProcessorFactory
	history      ports.HistoryStore
	logger       *slog.Logger
	now          func() time.Time
	newRunID     func() string
}

// BatchServiceOption customizes a BatchService.
type BatchServiceOption func(*BatchService)

// WithHistory records every run in store.
func WithHistory(store ports.HistoryStore) BatchServiceOption {
	return func(s *BatchService) { s.history = store }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchServiceOption {
	return func(s *BatchService) { s.logger = logger }
}

// WithBatchClock overrides the time source.
func WithBatchClock(now func() time.Time) BatchServiceOption {
	return func(s *BatchService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs overrides how run identifiers are generated.
func WithRunIDs(fn func() string) BatchServiceOption {
	return func(s *BatchService) {
		if fn != nil {
			s.newRunID = fn
		}
	}
}

// NewBatchService creates a batch service.
func NewBatchService(factory ProcessorFactory, opts ...BatchServiceOption) *BatchService {
	s := &BatchService{
		newProcessor: factory,
		now:          time.Now,
		newRunID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

// NewWorkerFactory returns a ProcessorFactory building workers that share
// collaborators and differ only in their event sink.
func NewWorkerFactory(downloader ports.Downloader, transcriber ports.Transcriber, opts WorkerOptions, options ...WorkerOption) ProcessorFactory {
	return func(sink EventSink) ItemProcessor {
		all := append(append([]WorkerOption{}, options...), WithEventSink(sink))
		return NewWorker(downloader, transcriber, opts, all...)
	}
}

// Run processes urls and returns the report. The display, when set, is fed
// from its own goroutine and has received every update by the time Run returns.
func (s *BatchService) Run(ctx context.Context, urls []string, opts BatchOptions) *domain.BatchReport {
	runID := s.newRunID()
	logger := logging.FromContext(ctx, s.logger).With(logging.FieldRunID, runID)
	ctx = logging.WithLogger(ctx, logger)
	started := s.now()

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var relay *Relay
	aggOpts := []AggregatorOption{WithClock(s.now)}
	if opts.Display != nil {
		relay = NewRelay(opts.Display, logger)
		aggOpts = append(aggOpts, WithListener(relay))
	}
	agg := NewAggregator(len(urls), aggOpts...)

	if s.history != nil {
		err := s.history.BeginRun(ctx, ports.RunRecord{
			ID:          runID,
			StartedAt:   started,
			Total:       len(urls),
			Concurrency: concurrency,
		})
		if err != nil {
			logger.Warn("history unavailable for this run", "error", err)
		}
	}

	logger.Info("batch started", "items", len(urls), "concurrency", concurrency)

	scheduler := NewScheduler(s.newProcessor(agg),
		WithSchedulerSink(agg),
		WithSchedulerLogger(logger),
		WithSchedulerClock(s.now),
		WithResultHook(func(result domain.ItemResult) { s.record(ctx, runID, result) }),
	)
	results := scheduler.RunBatch(ctx, urls, concurrency)

	if relay != nil {
		relay.Close()
	}

	report := domain.NewBatchReport(runID, results, started, s.now().Sub(started))
	if s.history != nil {
		if err := s.history.FinishRun(ctx, runID, report); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}

	logger.Info("batch finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
	return report
}

func (s *BatchService) record(ctx context.Context, runID string, result domain.ItemResult) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordItem(ctx, runID, result); err != nil {
		logging.FromContext(ctx, s.logger).Warn("failed to record item", "error", err)
	}
}
