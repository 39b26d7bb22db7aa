package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
)

// EventSink receives progress events from workers and the scheduler.
type EventSink interface {
	OnEvent(event domain.ProgressEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event domain.ProgressEvent)

// OnEvent calls f(event).
func (f EventSinkFunc) OnEvent(event domain.ProgressEvent) {
	f(event)
}

// emitSafely forwards event to sink. A panicking sink is logged and ignored.
func emitSafely(sink EventSink, logger *slog.Logger, event domain.ProgressEvent) {
	if sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("progress sink panicked",
				logging.FieldItemIndex, event.Item.Index,
				logging.FieldStage, string(event.Stage),
				"panic", rec,
			)
		}
	}()
	sink.OnEvent(event)
}

// SnapshotListener is notified after every aggregator update.
type SnapshotListener interface {
	Notify(snapshot domain.ProgressSnapshot, event domain.ProgressEvent)
}

// Aggregator folds progress events into a consistent batch snapshot.
// All mutation happens under a single mutex.
type Aggregator struct {
	mu        sync.Mutex
	snap      domain.ProgressSnapshot
	startedAt time.Time
	now       func() time.Time
	listener  SnapshotListener
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the time source used for elapsed time and ETA.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithListener registers a listener called after each update. It runs inside
// the critical section so snapshots arrive in order, and must not block.
func WithListener(l SnapshotListener) AggregatorOption {
	return func(a *Aggregator) {
		a.listener = l
	}
}

// NewAggregator creates an aggregator for a batch of total items.
func NewAggregator(total int, opts ...AggregatorOption) *Aggregator {
	if total < 0 {
		total = 0
	}
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.snap.Total = total
	a.startedAt = a.now()
	return a
}

// OnEvent applies an event. Only item-level events move the counters;
// stage events are forwarded to the listener untouched.
func (a *Aggregator) OnEvent(event domain.ProgressEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.IsItemLevel() {
		a.apply(event)
	}
	if a.listener != nil {
		a.listener.Notify(a.snapshotLocked(), event)
	}
}

func (a *Aggregator) apply(event domain.ProgressEvent) {
	switch event.Status {
	case domain.StatusStarted:
		a.snap.InFlight++
	case domain.StatusFinished:
		if a.snap.Completed >= a.snap.Total {
			return
		}
		a.decrementInFlight()
		a.snap.Completed++
		a.snap.Succeeded++
		a.snap.CumulativeBytes += event.Bytes
		a.snap.CumulativeDurationSeconds += event.Duration
	case domain.StatusFailed:
		if a.snap.Completed >= a.snap.Total {
			return
		}
		a.decrementInFlight()
		a.snap.Completed++
		a.snap.Failed++
	}
}

func (a *Aggregator) decrementInFlight() {
	if a.snap.InFlight > 0 {
		a.snap.InFlight--
	}
}

// Snapshot returns a copy of the current progress.
func (a *Aggregator) Snapshot() domain.ProgressSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() domain.ProgressSnapshot {
	snap := a.snap
	snap.Elapsed = a.now().Sub(a.startedAt)
	if snap.Completed > 0 {
		perItem := snap.Elapsed / time.Duration(snap.Completed)
		snap.EstimatedRemaining = perItem * time.Duration(snap.Total-snap.Completed)
		snap.ETAKnown = true
	} else {
		snap.EstimatedRemaining = 0
		snap.ETAKnown = false
	}
	return snap
}
