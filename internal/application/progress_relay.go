package application

import (
	"log/slog"
	"sync"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
)

// DisplayFunc renders progress. It may be slow; it never runs on a worker goroutine.
type DisplayFunc func(snapshot domain.ProgressSnapshot, event domain.ProgressEvent)

type relayUpdate struct {
	snapshot domain.ProgressSnapshot
	event    domain.ProgressEvent
}

// Relay hands aggregator updates to a display on its own goroutine.
// Item-level events are queued so none are lost; stage events are coalesced
// to the most recent one.
type Relay struct {
	display DisplayFunc
	logger  *slog.Logger

	mu     sync.Mutex
	items  []relayUpdate
	latest *relayUpdate
	closed bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewRelay starts a relay delivering to display.
func NewRelay(display DisplayFunc, logger *slog.Logger) *Relay {
	r := &Relay{
		display: display,
		logger:  logging.OrNop(logger),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Notify implements SnapshotListener. It never blocks on the display.
func (r *Relay) Notify(snapshot domain.ProgressSnapshot, event domain.ProgressEvent) {
	u := relayUpdate{snapshot: snapshot, event: event}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if event.IsItemLevel() && event.Status != domain.StatusStarted {
		r.items = append(r.items, u)
		r.latest = nil
	} else {
		r.latest = &u
	}
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Close stops accepting updates, flushes what is pending and waits for the
// display goroutine to exit.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	<-r.done
}

func (r *Relay) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.signal:
			r.flush()
		case <-r.stop:
			r.flush()
			return
		}
	}
}

func (r *Relay) flush() {
	r.mu.Lock()
	items := r.items
	latest := r.latest
	r.items = nil
	r.latest = nil
	r.mu.Unlock()

	for _, u := range items {
		r.deliver(u)
	}
	if latest != nil {
		r.deliver(*latest)
	}
}

func (r *Relay) deliver(u relayUpdate) {
	if r.display == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress display panicked",
				logging.FieldStage, string(u.event.Stage),
				"panic", rec,
			)
		}
	}()
	r.display(u.snapshot, u.event)
}
