package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
	"github.com/devbush/vdraft/internal/ports"
)

func testLogger() *slog.Logger {
	return logging.NewNop()
}

// scriptedDownloader returns errors from a per-URL script before succeeding.
type scriptedDownloader struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
	size     int64
	duration float64
}

func newScriptedDownloader() *scriptedDownloader {
	return &scriptedDownloader{
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		size:     2048,
		duration: 120,
	}
}

func (d *scriptedDownloader) failWith(url string, errs ...error) {
	d.failures[url] = errs
}

func (d *scriptedDownloader) Fetch(ctx context.Context, url, destDir string) (*ports.DownloadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.calls[url]
	d.calls[url] = n + 1
	if errs := d.failures[url]; n < len(errs) {
		return nil, errs[n]
	}
	return &ports.DownloadResult{
		LocalPath: destDir + "/audio.wav",
		Media: &domain.Media{
			URL:             url,
			Title:           "Video " + url,
			DurationSeconds: d.duration,
			FileSizeBytes:   d.size,
			FetchedAt:       time.Now(),
		},
	}, nil
}

func (d *scriptedDownloader) callCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[url]
}

type stubTranscriber struct {
	text  string
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string, opts ports.TranscribeOpts) (*domain.Transcript, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.text == "" {
		return &domain.Transcript{Model: opts.Model}, nil
	}
	return &domain.Transcript{
		Segments: []domain.Segment{{Start: 0, End: 3.5, Text: s.text}},
		Model:    opts.Model,
		Language: "en",
	}, nil
}

type stubCorrector struct {
	mu         sync.Mutex
	correctErr []error
	calls      int
	summaries  int
	keywords   int
}

func (c *stubCorrector) Correct(ctx context.Context, text, hint string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.calls
	c.calls++
	if n < len(c.correctErr) {
		return "", c.correctErr[n]
	}
	return "Corrected: " + text, nil
}

func (c *stubCorrector) Summarize(ctx context.Context, text, hint string) (string, error) {
	c.mu.Lock()
	c.summaries++
	c.mu.Unlock()
	return "summary", nil
}

func (c *stubCorrector) ExtractKeywords(ctx context.Context, text, hint string) ([]string, error) {
	c.mu.Lock()
	c.keywords++
	c.mu.Unlock()
	return []string{"go", "batch"}, nil
}

type stubFormatter struct {
	mu   sync.Mutex
	docs []ports.Document
	err  error
}

func (f *stubFormatter) Write(ctx context.Context, doc ports.Document, destDir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return []string{destDir + "/draft.md"}, nil
}

// eventRecorder is a concurrency-safe EventSink.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *eventRecorder) OnEvent(e domain.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) stages(status domain.EventStatus) []domain.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Stage
	for _, e := range r.events {
		if e.Status == status {
			out = append(out, e.Stage)
		}
	}
	return out
}

func noSleepExecutor() *Executor {
	return NewExecutor(WithSleeper(func(time.Duration) {}))
}
