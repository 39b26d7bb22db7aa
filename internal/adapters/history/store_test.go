package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.BeginRun(ctx, ports.RunRecord{ID: "run-1", StartedAt: started, Total: 2, Concurrency: 2}); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	ok := domain.ItemResult{
		Item:      domain.WorkItem{URL: "https://example.com/a", Index: 0},
		Success:   true,
		Artifacts: &domain.Artifacts{Title: "A", OutputFiles: []string{"a.md", "a.docx"}},
		Attempts:  map[domain.Stage]int{domain.StageDownload: 2, domain.StageTranscribe: 1},
		Cached:    true,
		Elapsed:   1500 * time.Millisecond,
	}
	failed := domain.FailedResult(domain.WorkItem{URL: "ftp://x", Index: 1}, domain.StageDownload, domain.KindNotSupported, "unsupported URL")

	// record out of order, as concurrent workers do
	if err := store.RecordItem(ctx, "run-1", failed); err != nil {
		t.Fatalf("RecordItem() error = %v", err)
	}
	if err := store.RecordItem(ctx, "run-1", ok); err != nil {
		t.Fatalf("RecordItem() error = %v", err)
	}

	report := domain.NewBatchReport("run-1", []domain.ItemResult{ok, failed}, started, 90*time.Second)
	if err := store.FinishRun(ctx, "run-1", report); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() = %+v", runs)
	}
	run := runs[0]
	if run.Succeeded != 1 || run.Failed != 1 || run.Total != 2 || run.Concurrency != 2 {
		t.Errorf("run = %+v", run)
	}
	if !run.StartedAt.Equal(started) || !run.FinishedAt.Equal(started.Add(90*time.Second)) {
		t.Errorf("run times = %v .. %v", run.StartedAt, run.FinishedAt)
	}

	items, err := store.RunItems(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunItems() error = %v", err)
	}
	if len(items) != 2 || items[0].Index != 0 || items[1].Index != 1 {
		t.Fatalf("RunItems() = %+v", items)
	}
	first := items[0]
	if !first.Success || !first.Cached || first.Attempts != 3 || first.Title != "A" || len(first.OutputFiles) != 2 || first.Elapsed != 1500*time.Millisecond {
		t.Errorf("first item = %+v", first)
	}
	second := items[1]
	if second.Success || second.Stage != "download" || second.Kind != "not_supported" || second.Message != "unsupported URL" {
		t.Errorf("second item = %+v", second)
	}
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		_ = store.BeginRun(ctx, ports.RunRecord{ID: id, StartedAt: base.Add(time.Duration(i) * 500 * time.Millisecond), Total: 1})
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("ListRuns() = %+v", runs)
	}
}

func TestStore_GetRunByPrefix(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.BeginRun(ctx, ports.RunRecord{ID: "abc123", StartedAt: time.Now(), Total: 1})
	_ = store.BeginRun(ctx, ports.RunRecord{ID: "abd456", StartedAt: time.Now(), Total: 1})

	run, err := store.GetRun(ctx, "abc")
	if err != nil || run.ID != "abc123" {
		t.Errorf("GetRun(abc) = %+v, %v", run, err)
	}
	if _, err := store.GetRun(ctx, "ab"); err == nil {
		t.Error("GetRun(ab) should be ambiguous")
	}
	if _, err := store.GetRun(ctx, "zzz"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(zzz) error = %v, want ErrRunNotFound", err)
	}
}

func TestStore_FinishUnknownRun(t *testing.T) {
	store := openTestStore(t)
	report := domain.NewBatchReport("missing", nil, time.Now(), 0)
	if err := store.FinishRun(context.Background(), "missing", report); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestStore_ConcurrentRecordItem(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.BeginRun(ctx, ports.RunRecord{ID: "run", StartedAt: time.Now(), Total: 20})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.RecordItem(ctx, "run", domain.ItemResult{
				Item:    domain.WorkItem{URL: "https://example.com", Index: i},
				Success: true,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordItem() error = %v", err)
		}
	}

	items, err := store.RunItems(ctx, "run")
	if err != nil || len(items) != 20 {
		t.Errorf("RunItems() = %d items, %v", len(items), err)
	}
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = store.BeginRun(ctx, ports.RunRecord{ID: "old", StartedAt: now.Add(-48 * time.Hour), Total: 1})
	_ = store.RecordItem(ctx, "old", domain.ItemResult{Item: domain.WorkItem{URL: "u", Index: 0}})
	_ = store.BeginRun(ctx, ports.RunRecord{ID: "new", StartedAt: now, Total: 1})

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune() = %d, %v", n, err)
	}
	items, _ := store.RunItems(ctx, "old")
	if len(items) != 0 {
		t.Errorf("items of pruned run survived: %+v", items)
	}
}

func TestIsSQLiteBusy(t *testing.T) {
	if !isSQLiteBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("locked error should be busy")
	}
	if isSQLiteBusy(errors.New("no such table")) || isSQLiteBusy(nil) {
		t.Error("other errors are not busy")
	}
}
