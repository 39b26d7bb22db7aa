package application

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/logging"
	"github.com/devbush/vdraft/internal/ports"
)

const defaultModel = "small"

// WorkerOptions configures what the worker does with each item.
type WorkerOptions struct {
	Model     string
	Language  string // empty defaults to "auto"
	Correct   bool
	Summarize bool
	Keywords  bool
	OutputDir string
	WorkDir   string // audio lands here when no cache is configured
	NoCache   bool
	CacheTTL  time.Duration
}

// Worker runs the per-item pipeline: download, transcribe, correct, format.
type Worker struct {
	downloader  ports.Downloader
	transcriber ports.Transcriber
	corrector   ports.Corrector
	formatter   ports.Formatter
	cache       ports.CacheStore

	executor       *Executor
	downloadPolicy RetryPolicy
	modelPolicy    RetryPolicy

	sink   EventSink
	logger *slog.Logger
	now    func() time.Time
	opts   WorkerOptions
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithCorrector enables the correct stage.
func WithCorrector(c ports.Corrector) WorkerOption {
	return func(w *Worker) { w.corrector = c }
}

// WithFormatter enables the format stage.
func WithFormatter(f ports.Formatter) WorkerOption {
	return func(w *Worker) { w.formatter = f }
}

// WithCache lets the worker reuse earlier transcripts.
func WithCache(c ports.CacheStore) WorkerOption {
	return func(w *Worker) { w.cache = c }
}

// WithExecutor sets the executor used for network-bound stages.
func WithExecutor(e *Executor) WorkerOption {
	return func(w *Worker) {
		if e != nil {
			w.executor = e
		}
	}
}

// WithPolicies overrides the download and model call retry policies.
func WithPolicies(download, model RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.downloadPolicy = download
		w.modelPolicy = model
	}
}

// WithEventSink sets where stage events go.
func WithEventSink(sink EventSink) WorkerOption {
	return func(w *Worker) { w.sink = sink }
}

// WithWorkerLogger sets the fallback logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// WithWorkerClock overrides the time source.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker creates a worker. Corrector, formatter and cache are optional.
func NewWorker(downloader ports.Downloader, transcriber ports.Transcriber, opts WorkerOptions, options ...WorkerOption) *Worker {
	w := &Worker{
		downloader:     downloader,
		transcriber:    transcriber,
		downloadPolicy: DownloadPolicy(),
		modelPolicy:    ModelCallPolicy(),
		now:            time.Now,
		opts:           opts,
	}
	for _, opt := range options {
		opt(w)
	}
	w.logger = logging.OrNop(w.logger)
	if w.executor == nil {
		w.executor = NewExecutor(WithExecutorLogger(w.logger))
	}
	if w.opts.Model == "" {
		w.opts.Model = defaultModel
	}
	if w.opts.Language == "" {
		w.opts.Language = "auto"
	}
	return w
}

// itemRun carries the state of one Process call.
type itemRun struct {
	item      domain.WorkItem
	logger    *slog.Logger
	attempts  map[domain.Stage]int
	artifacts domain.Artifacts
	cached    bool
}

// Process runs every stage for item and returns its single result.
// It stops at the first failing stage.
func (w *Worker) Process(ctx context.Context, item domain.WorkItem) domain.ItemResult {
	started := w.now()
	run := &itemRun{
		item:     item,
		logger:   logging.FromContext(ctx, w.logger),
		attempts: make(map[domain.Stage]int),
	}

	stageErr := w.process(ctx, run)

	result := domain.ItemResult{
		Item:     item,
		Success:  stageErr == nil,
		Error:    stageErr,
		Attempts: run.attempts,
		Cached:   run.cached,
		Elapsed:  w.now().Sub(started),
	}
	if stageErr == nil || run.artifacts.Produced() {
		artifacts := run.artifacts
		result.Artifacts = &artifacts
	}
	return result
}

func (w *Worker) process(ctx context.Context, run *itemRun) *domain.StageError {
	key := domain.MediaKey(run.item.URL)

	var transcript *domain.Transcript
	if cached := w.lookupCache(ctx, run, key); cached != nil {
		transcript = cached
	} else {
		if err := w.download(ctx, run, key); err != nil {
			return err
		}
		t, err := w.transcribe(ctx, run)
		if err != nil {
			return err
		}
		transcript = t
		w.storeCache(ctx, run, key, transcript)
	}

	run.artifacts.Segments = transcript.Segments
	run.artifacts.Transcript = transcript.ToText()
	if run.artifacts.Language == "" {
		run.artifacts.Language = transcript.Language
	}

	if err := w.correct(ctx, run); err != nil {
		return err
	}
	return w.format(ctx, run)
}

func (w *Worker) lookupCache(ctx context.Context, run *itemRun, key string) *domain.Transcript {
	if w.cache == nil || w.opts.NoCache {
		return nil
	}
	cached, err := w.cache.Get(ctx, key)
	if err != nil || cached == nil || cached.Transcript == nil {
		return nil
	}
	run.cached = true
	run.artifacts.AudioPath = cached.AudioPath
	if cached.Media != nil {
		run.artifacts.Title = cached.Media.Title
		run.artifacts.DurationSeconds = cached.Media.DurationSeconds
		run.artifacts.FileSizeBytes = cached.Media.FileSizeBytes
	}
	run.logger.Debug("transcript served from cache", logging.FieldURL, run.item.URL)
	return cached.Transcript
}

func (w *Worker) storeCache(ctx context.Context, run *itemRun, key string, transcript *domain.Transcript) {
	if w.cache == nil {
		return
	}
	now := w.now()
	item := &ports.CachedItem{
		Media: &domain.Media{
			URL:             run.item.URL,
			Title:           run.artifacts.Title,
			DurationSeconds: run.artifacts.DurationSeconds,
			FileSizeBytes:   run.artifacts.FileSizeBytes,
			FetchedAt:       now,
		},
		Transcript: transcript,
		AudioPath:  run.artifacts.AudioPath,
		CreatedAt:  now,
		ExpiresAt:  now.Add(w.opts.CacheTTL),
	}
	// cache failures are non-fatal
	if err := w.cache.Set(ctx, key, item); err != nil {
		run.logger.Warn("cache write failed", "error", err)
	}
}

func (w *Worker) workDir(key string) string {
	if w.cache != nil {
		return w.cache.GetCacheDir(key)
	}
	base := w.opts.WorkDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, key)
}

func (w *Worker) download(ctx context.Context, run *itemRun, key string) *domain.StageError {
	w.emit(ctx, run, domain.StageDownload, domain.StatusStarted, "")

	if _, err := domain.ParseSourceURL(run.item.URL); err != nil {
		msg := fmt.Sprintf("cannot download %q: %v", run.item.URL, err)
		return w.fail(ctx, run, domain.StageDownload, domain.KindNotSupported, msg)
	}

	outcome := Call(ctx, w.executor, w.downloadPolicy, func(ctx context.Context) (*ports.DownloadResult, error) {
		return w.downloader.Fetch(ctx, run.item.URL, w.workDir(key))
	})
	run.attempts[domain.StageDownload] = outcome.Attempts
	if !outcome.OK() {
		return w.fail(ctx, run, domain.StageDownload, outcome.Failure.Kind, outcome.Failure.Message)
	}

	res := outcome.Value
	if res != nil {
		run.artifacts.AudioPath = res.LocalPath
		if res.Media != nil {
			run.artifacts.Title = res.Media.Title
			run.artifacts.DurationSeconds = res.Media.DurationSeconds
			run.artifacts.FileSizeBytes = res.Media.FileSizeBytes
		}
	}
	w.emitEvent(ctx, run, domain.ProgressEvent{
		Stage:    domain.StageDownload,
		Status:   domain.StatusFinished,
		Bytes:    run.artifacts.FileSizeBytes,
		Duration: run.artifacts.DurationSeconds,
		Attempts: outcome.Attempts,
	})
	return nil
}

func (w *Worker) transcribe(ctx context.Context, run *itemRun) (*domain.Transcript, *domain.StageError) {
	w.emit(ctx, run, domain.StageTranscribe, domain.StatusStarted, "")
	run.attempts[domain.StageTranscribe] = 1

	transcript, err := w.transcriber.Transcribe(ctx, run.artifacts.AudioPath, ports.TranscribeOpts{
		Model:    w.opts.Model,
		Language: w.opts.Language,
	})
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindInternal {
			kind = domain.KindTranscription
		}
		return nil, w.fail(ctx, run, domain.StageTranscribe, kind, err.Error())
	}
	if transcript == nil {
		transcript = &domain.Transcript{Model: w.opts.Model, TranscribedAt: w.now()}
	}

	w.emitEvent(ctx, run, domain.ProgressEvent{
		Stage:    domain.StageTranscribe,
		Status:   domain.StatusFinished,
		Duration: run.artifacts.DurationSeconds,
		Attempts: 1,
	})
	return transcript, nil
}

func (w *Worker) wantsCorrection() bool {
	return w.corrector != nil && (w.opts.Correct || w.opts.Summarize || w.opts.Keywords)
}

func (w *Worker) languageHint(run *itemRun) string {
	if lang := strings.TrimSpace(w.opts.Language); lang != "" && lang != "auto" {
		return lang
	}
	if run.artifacts.Language != "" {
		return run.artifacts.Language
	}
	return "auto"
}

func (w *Worker) correct(ctx context.Context, run *itemRun) *domain.StageError {
	if !w.wantsCorrection() {
		return nil
	}
	text := run.artifacts.Transcript
	if strings.TrimSpace(text) == "" {
		run.logger.Debug("skipping correction of empty transcript")
		return nil
	}

	w.emit(ctx, run, domain.StageCorrect, domain.StatusStarted, "")
	hint := w.languageHint(run)

	if w.opts.Correct {
		out := Call(ctx, w.executor, w.modelPolicy, func(ctx context.Context) (string, error) {
			return w.corrector.Correct(ctx, text, hint)
		})
		run.attempts[domain.StageCorrect] += out.Attempts
		if !out.OK() {
			return w.fail(ctx, run, domain.StageCorrect, out.Failure.Kind, out.Failure.Message)
		}
		run.artifacts.CorrectedText = out.Value
		text = out.Value
	}

	if w.opts.Summarize {
		out := Call(ctx, w.executor, w.modelPolicy, func(ctx context.Context) (string, error) {
			return w.corrector.Summarize(ctx, text, hint)
		})
		run.attempts[domain.StageCorrect] += out.Attempts
		if !out.OK() {
			return w.fail(ctx, run, domain.StageCorrect, out.Failure.Kind, out.Failure.Message)
		}
		run.artifacts.Summary = out.Value
	}

	if w.opts.Keywords {
		out := Call(ctx, w.executor, w.modelPolicy, func(ctx context.Context) ([]string, error) {
			return w.corrector.ExtractKeywords(ctx, text, hint)
		})
		run.attempts[domain.StageCorrect] += out.Attempts
		if !out.OK() {
			return w.fail(ctx, run, domain.StageCorrect, out.Failure.Kind, out.Failure.Message)
		}
		run.artifacts.Keywords = out.Value
	}

	w.emitEvent(ctx, run, domain.ProgressEvent{
		Stage:    domain.StageCorrect,
		Status:   domain.StatusFinished,
		Attempts: run.attempts[domain.StageCorrect],
	})
	return nil
}

func (w *Worker) format(ctx context.Context, run *itemRun) *domain.StageError {
	if w.formatter == nil {
		return nil
	}
	w.emit(ctx, run, domain.StageFormat, domain.StatusStarted, "")
	run.attempts[domain.StageFormat] = 1

	content := run.artifacts.CorrectedText
	if content == "" {
		content = run.artifacts.Transcript
	}
	doc := ports.Document{
		Title:   run.artifacts.Title,
		Content: content,
		Metadata: ports.Metadata{
			SourceURL:       run.item.URL,
			DurationSeconds: run.artifacts.DurationSeconds,
			FileSizeBytes:   run.artifacts.FileSizeBytes,
			Language:        run.artifacts.Language,
			Model:           w.opts.Model,
			CreatedAt:       w.now(),
		},
		Segments: run.artifacts.Segments,
		Summary:  run.artifacts.Summary,
		Keywords: run.artifacts.Keywords,
	}

	files, err := w.formatter.Write(ctx, doc, w.opts.OutputDir)
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindInternal {
			kind = domain.KindIO
		}
		return w.fail(ctx, run, domain.StageFormat, kind, err.Error())
	}
	run.artifacts.OutputFiles = files

	w.emit(ctx, run, domain.StageFormat, domain.StatusFinished, "")
	return nil
}

func (w *Worker) fail(ctx context.Context, run *itemRun, stage domain.Stage, kind domain.FailureKind, msg string) *domain.StageError {
	run.logger.Warn("stage failed",
		logging.FieldStage, string(stage),
		"kind", string(kind),
		logging.FieldAttempt, run.attempts[stage],
		"error", msg,
	)
	w.emitEvent(ctx, run, domain.ProgressEvent{
		Stage:    stage,
		Status:   domain.StatusFailed,
		Attempts: run.attempts[stage],
		Message:  msg,
	})
	return &domain.StageError{Stage: stage, Kind: kind, Message: msg}
}

func (w *Worker) emit(ctx context.Context, run *itemRun, stage domain.Stage, status domain.EventStatus, msg string) {
	w.emitEvent(ctx, run, domain.ProgressEvent{Stage: stage, Status: status, Message: msg})
}

func (w *Worker) emitEvent(_ context.Context, run *itemRun, event domain.ProgressEvent) {
	event.Item = run.item
	event.At = w.now()
	emitSafely(w.sink, run.logger, event)
}
