package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/devbush/vdraft/internal/adapters/cache"
	"github.com/devbush/vdraft/internal/adapters/ffmpeg"
	"github.com/devbush/vdraft/internal/adapters/history"
	"github.com/devbush/vdraft/internal/adapters/llm"
	"github.com/devbush/vdraft/internal/adapters/output"
	"github.com/devbush/vdraft/internal/adapters/whisper"
	"github.com/devbush/vdraft/internal/adapters/ytdlp"
	"github.com/devbush/vdraft/internal/application"
	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/logging"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Profiles *config.ProfileStore

	Cache       *cache.FileCache
	Downloader  *ytdlp.Downloader
	Transcriber *whisper.Transcriber
	FFmpeg      *ffmpeg.Installer

	CacheSvc    *application.CacheService
	PlaylistSvc *application.PlaylistService

	history *history.Store
}

// NewApp loads configuration, applies flag overrides and wires adapters.
// Adapters that need credentials or open files are created lazily.
func NewApp(flags *globalFlags) (*App, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, err
	}

	profiles := config.NewProfileStore(config.ProfilesDir())
	cfg, err := loadConfig(profiles, flags.profile)
	if err != nil {
		return nil, err
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg, flags.verbose)
	if err != nil {
		return nil, err
	}

	fileCache := cache.NewFileCache(config.CacheDir())
	ffmpegInstaller := ffmpeg.NewInstaller(config.BinDir(), cfg.Paths.FFmpeg)
	downloader := ytdlp.NewDownloader(cfg.Paths.YtDlp, ffmpegInstaller.GetBinaryPath())
	transcriber := whisper.NewTranscriber(config.ModelsDir()).
		WithBinary(cfg.Paths.Whisper).
		WithTempDir(cfg.Paths.TempDir)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Profiles:    profiles,
		Cache:       fileCache,
		Downloader:  downloader,
		Transcriber: transcriber,
		FFmpeg:      ffmpegInstaller,
		CacheSvc:    application.NewCacheService(fileCache),
		PlaylistSvc: application.NewPlaylistService(downloader),
	}, nil
}

func loadConfig(profiles *config.ProfileStore, profile string) (*config.Config, error) {
	if profile == "" {
		return config.LoadDefault()
	}
	p, err := profiles.Load(profile)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", profile, err)
	}
	return p.Config, nil
}

// newLogger always logs to the log file. stderr is added when asked for or
// when stderr is not a terminal, so live displays stay readable.
func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	paths := []string{filepath.Join(config.LogsDir(), "vdraft.log")}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if verbose || !isatty.IsTerminal(os.Stderr.Fd()) {
		paths = append(paths, "stderr")
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
	})
}

// History opens the run history database on first use.
func (a *App) History() (*history.Store, error) {
	if a.history != nil {
		return a.history, nil
	}
	store, err := history.Open(config.HistoryPath())
	if err != nil {
		return nil, err
	}
	a.history = store
	return store, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// cacheTTL returns the configured TTL, falling back to a week.
func (a *App) cacheTTL() time.Duration {
	ttl, err := a.Config.GetCacheTTL()
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return ttl
}

// workerOptions maps configuration onto the per-item pipeline.
func (a *App) workerOptions(noCache bool) application.WorkerOptions {
	workDir := a.Config.Paths.TempDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "vdraft")
	}
	return application.WorkerOptions{
		Model:     a.Config.Defaults.Model,
		Language:  a.Config.Defaults.Language,
		Correct:   a.Config.Corrector.Enabled,
		Summarize: a.Config.Corrector.Summarize,
		Keywords:  a.Config.Corrector.Keywords,
		OutputDir: a.Config.Defaults.OutputDir,
		WorkDir:   workDir,
		NoCache:   noCache,
		CacheTTL:  a.cacheTTL(),
	}
}

// retryPolicies builds the download and model call policies from config,
// keeping the default retryable kinds.
func (a *App) retryPolicies() (download, model application.RetryPolicy) {
	download = application.DownloadPolicy()
	model = application.ModelCallPolicy()

	d := a.Config.Retry.Download
	if d.MaxAttempts > 0 {
		download.MaxAttempts = d.MaxAttempts
	}
	download.BaseDelay, download.MaxDelay, download.AttemptTimeout = d.Durations(download.BaseDelay, download.MaxDelay, download.AttemptTimeout)

	m := a.Config.Retry.Model
	if m.MaxAttempts > 0 {
		model.MaxAttempts = m.MaxAttempts
	}
	model.BaseDelay, model.MaxDelay, model.AttemptTimeout = m.Durations(model.BaseDelay, model.MaxDelay, model.AttemptTimeout)
	return download, model
}

// workerCollaborators returns the optional stages the configuration asks
// for. The corrector is only built when some language model step is on.
func (a *App) workerCollaborators(noCache bool) ([]application.WorkerOption, error) {
	formatter, err := output.NewFormatter(a.Config.Defaults.Formats)
	if err != nil {
		return nil, err
	}
	download, model := a.retryPolicies()

	opts := []application.WorkerOption{
		application.WithFormatter(formatter),
		application.WithPolicies(download, model),
		application.WithWorkerLogger(a.Logger),
		application.WithExecutor(application.NewExecutor(application.WithExecutorLogger(a.Logger))),
	}
	if !noCache {
		opts = append(opts, application.WithCache(a.Cache))
	}

	c := a.Config.Corrector
	if c.Enabled || c.Summarize || c.Keywords {
		corrector, err := llm.New(c, llm.WithLogger(a.Logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, application.WithCorrector(corrector))
	}
	return opts, nil
}

// newBatchService wires a batch service with history recording. History
// failures only cost the record, never the batch.
func (a *App) newBatchService(noCache bool) (*application.BatchService, error) {
	collaborators, err := a.workerCollaborators(noCache)
	if err != nil {
		return nil, err
	}
	factory := application.NewWorkerFactory(a.Downloader, a.Transcriber, a.workerOptions(noCache), collaborators...)

	opts := []application.BatchServiceOption{application.WithBatchLogger(a.Logger)}
	if store, err := a.History(); err != nil {
		a.Logger.Warn("run history unavailable", "error", err)
	} else {
		opts = append(opts, application.WithHistory(store))
	}
	return application.NewBatchService(factory, opts...), nil
}
