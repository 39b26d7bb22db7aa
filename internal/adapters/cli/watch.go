package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/logging"
)

var (
	watchExistingFlag bool
	watchDebounceFlag time.Duration
)

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <list-file>",
		Short: "Process URLs as they are added to a list file",
		Long: `Watch a list file and process every URL appended to it.

URLs already in the file when watching starts are skipped unless
--process-existing is set. Stop with ctrl+c.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().BoolVar(&watchExistingFlag, "process-existing", false, "Process URLs already in the file")
	cmd.Flags().DurationVar(&watchDebounceFlag, "debounce", 500*time.Millisecond, "Wait this long after the last change before reading")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", config.DefaultConfig().Defaults.Concurrency, "Max concurrent workers (max 50)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	w := newListWatcher(path, watchDebounceFlag, app.Logger, func(ctx context.Context, urls []string) error {
		fmt.Printf("\n%d new URL(s) in %s\n", len(urls), filepath.Base(path))
		return processBatch(ctx, app, urls, true)
	})
	if err := w.prime(watchExistingFlag); err != nil {
		return err
	}

	fmt.Printf("Watching %s (ctrl+c to stop)\n", path)
	if err := w.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// listWatcher feeds URLs newly added to a list file to process. Batches
// run one at a time on the watch loop.
type listWatcher struct {
	path     string
	debounce time.Duration
	process  func(ctx context.Context, urls []string) error
	logger   *slog.Logger
	seen     map[string]bool

	onReady func() // test hook
}

func newListWatcher(path string, debounce time.Duration, logger *slog.Logger, process func(context.Context, []string) error) *listWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &listWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		process:  process,
		logger:   logging.OrNop(logger),
		seen:     make(map[string]bool),
	}
}

// prime records the current contents as seen, unless they should be
// processed on the first scan.
func (w *listWatcher) prime(processExisting bool) error {
	if processExisting {
		return nil
	}
	urls, err := w.read()
	if err != nil {
		return err
	}
	for _, u := range urls {
		w.seen[u] = true
	}
	return nil
}

func (w *listWatcher) read() ([]string, error) {
	urls, err := ParseInputFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return urls, err
}

// scan processes URLs not seen before. A failing batch is logged; the
// watch goes on.
func (w *listWatcher) scan(ctx context.Context) {
	urls, err := w.read()
	if err != nil {
		w.logger.Warn("failed to read list file", "path", w.path, "error", err)
		return
	}

	var fresh []string
	for _, u := range urls {
		if !w.seen[u] {
			w.seen[u] = true
			fresh = append(fresh, u)
		}
	}
	if len(fresh) == 0 {
		return
	}

	w.logger.Info("new URLs detected", "path", w.path, "count", len(fresh))
	if err := w.process(ctx, fresh); err != nil {
		w.logger.Error("batch from list file failed", "error", err)
	}
}

// run watches the file's directory, so editors that replace the file on
// save are followed, and scans after each burst of changes settles.
func (w *listWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	if w.onReady != nil {
		w.onReady()
	}

	w.scan(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("list file changed", "op", event.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.scan(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}
