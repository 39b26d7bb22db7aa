package application

import (
	"sync"
	"testing"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

func TestRelay_DeliversFinalSnapshot(t *testing.T) {
	var mu sync.Mutex
	var last domain.ProgressSnapshot

	relay := NewRelay(func(s domain.ProgressSnapshot, _ domain.ProgressEvent) {
		mu.Lock()
		last = s
		mu.Unlock()
	}, testLogger())

	for i := 1; i <= 5; i++ {
		relay.Notify(domain.ProgressSnapshot{Total: 5, Completed: i, Succeeded: i}, itemEvent(i-1, domain.StatusFinished))
	}
	relay.Close()

	mu.Lock()
	defer mu.Unlock()
	if last.Completed != 5 {
		t.Errorf("last delivered Completed = %d, want 5", last.Completed)
	}
}

func TestRelay_KeepsEveryItemEvent(t *testing.T) {
	var mu sync.Mutex
	var terminal int
	release := make(chan struct{})

	relay := NewRelay(func(_ domain.ProgressSnapshot, e domain.ProgressEvent) {
		<-release
		if e.IsItemLevel() && e.Status != domain.StatusStarted {
			mu.Lock()
			terminal++
			mu.Unlock()
		}
	}, testLogger())

	for i := 0; i < 20; i++ {
		relay.Notify(domain.ProgressSnapshot{}, domain.ProgressEvent{Stage: domain.StageDownload, Status: domain.StatusStarted})
		relay.Notify(domain.ProgressSnapshot{}, itemEvent(i, domain.StatusFinished))
	}
	close(release)
	relay.Close()

	mu.Lock()
	defer mu.Unlock()
	if terminal != 20 {
		t.Errorf("delivered %d item events, want 20", terminal)
	}
}

func TestRelay_SlowDisplayDoesNotBlockNotify(t *testing.T) {
	block := make(chan struct{})
	relay := NewRelay(func(domain.ProgressSnapshot, domain.ProgressEvent) {
		<-block
	}, testLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			relay.Notify(domain.ProgressSnapshot{Completed: i}, domain.ProgressEvent{Stage: domain.StageTranscribe})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a slow display")
	}
	close(block)
	relay.Close()
}

func TestRelay_RecoversDisplayPanic(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	relay := NewRelay(func(domain.ProgressSnapshot, domain.ProgressEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("render failed")
	}, testLogger())

	relay.Notify(domain.ProgressSnapshot{}, itemEvent(0, domain.StatusFinished))
	relay.Notify(domain.ProgressSnapshot{}, itemEvent(1, domain.StatusFailed))
	relay.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("display called %d times, want 2", calls)
	}
}

func TestRelay_CloseIsIdempotent(t *testing.T) {
	relay := NewRelay(nil, testLogger())
	relay.Close()
	relay.Close()
	relay.Notify(domain.ProgressSnapshot{}, itemEvent(0, domain.StatusFinished))
}
