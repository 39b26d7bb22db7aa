package application

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
)

const internalFailureMessage = "internal error while processing item"

// ItemProcessor turns one work item into its result.
type ItemProcessor interface {
	Process(ctx context.Context, item domain.WorkItem) domain.ItemResult
}

// ItemProcessorFunc adapts a function to ItemProcessor.
type ItemProcessorFunc func(ctx context.Context, item domain.WorkItem) domain.ItemResult

// Process calls f(ctx, item).
func (f ItemProcessorFunc) Process(ctx context.Context, item domain.WorkItem) domain.ItemResult {
	return f(ctx, item)
}

// Scheduler dispatches a batch of URLs to a processor.
type Scheduler struct {
	processor ItemProcessor
	sink      EventSink
	logger    *slog.Logger
	now       func() time.Time
	onResult  func(domain.ItemResult)
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerSink sets where item lifecycle events go.
func WithSchedulerSink(sink EventSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithSchedulerLogger sets the fallback logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResultHook registers fn to be called with each finished result.
// With concurrency above 1 it is called from several goroutines at once.
func WithResultHook(fn func(domain.ItemResult)) SchedulerOption {
	return func(s *Scheduler) { s.onResult = fn }
}

// NewScheduler creates a scheduler around processor.
func NewScheduler(processor ItemProcessor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{processor: processor, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

// RunBatch processes urls and returns one result per URL in input order.
// A concurrency of 1 (or less) runs items one after another; higher values
// bound the number of items in flight. Failed items never stop the batch.
func (s *Scheduler) RunBatch(ctx context.Context, urls []string, concurrency int) []domain.ItemResult {
	results := make([]domain.ItemResult, len(urls))
	if concurrency < 1 {
		concurrency = 1
	}

	if concurrency == 1 {
		for i, u := range urls {
			results[i] = s.runItem(ctx, domain.WorkItem{URL: u, Index: i})
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		item := domain.WorkItem{URL: u, Index: i}
		g.Go(func() error {
			results[item.Index] = s.runItem(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) runItem(ctx context.Context, item domain.WorkItem) (result domain.ItemResult) {
	logger := logging.FromContext(ctx, s.logger).With(
		logging.FieldCorrelationID, uuid.NewString(),
		logging.FieldItemIndex, item.Index,
		logging.FieldURL, item.URL,
	)
	ctx = logging.WithLogger(ctx, logger)
	started := s.now()

	emitSafely(s.sink, logger, domain.ProgressEvent{
		Item:   item,
		Stage:  domain.StageItem,
		Status: domain.StatusStarted,
		At:     started,
	})

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("item processing panicked",
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			result = domain.FailedResult(item, domain.StageInternal, domain.KindInternal, internalFailureMessage)
			result.Elapsed = s.now().Sub(started)
		}
		s.finish(logger, result)
	}()

	result = s.processor.Process(ctx, item)
	result.Item = item
	return result
}

func (s *Scheduler) finish(logger *slog.Logger, result domain.ItemResult) {
	event := domain.ProgressEvent{
		Item:     result.Item,
		Stage:    domain.StageItem,
		Status:   domain.StatusFinished,
		Bytes:    result.Bytes(),
		Duration: result.MediaSeconds(),
		At:       s.now(),
	}
	for _, n := range result.Attempts {
		event.Attempts += n
	}
	if !result.Success {
		event.Status = domain.StatusFailed
		if result.Error != nil {
			event.Message = result.Error.Message
		}
		logger.Info("item failed", logging.FieldStage, errorStage(result))
	} else {
		logger.Info("item finished", "cached", result.Cached, "elapsed", result.Elapsed)
	}
	emitSafely(s.sink, logger, event)

	if s.onResult != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("result hook panicked", "panic", fmt.Sprint(rec))
				}
			}()
			s.onResult(result)
		}()
	}
}

func errorStage(result domain.ItemResult) string {
	if result.Error == nil {
		return ""
	}
	return string(result.Error.Stage)
}
