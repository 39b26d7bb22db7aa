package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/application"
	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
)

const maxConcurrency = 50

var (
	batchFileFlag   string
	batchExpandFlag bool
	batchLimitFlag  int
)

// NewBatchCmd creates the batch command
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [urls...]",
		Short: "Process many videos concurrently",
		Long: `Process many videos concurrently.

Provide video URLs as arguments and/or via a file with --file. Playlist and
channel URLs are expanded into their videos with --expand. One failed video
never stops the others; failures are listed at the end.

Example:
  vdraft batch https://youtu.be/a https://youtu.be/b
  vdraft batch --file talks.txt --concurrency 4
  vdraft batch --expand --limit 20 https://www.youtube.com/playlist?list=PL...`,
		RunE: runBatch,
	}

	cmd.Flags().StringVarP(&batchFileFlag, "file", "f", "", "File with video URLs (one per line)")
	cmd.Flags().BoolVar(&batchExpandFlag, "expand", false, "Expand playlist and channel URLs into videos")
	cmd.Flags().IntVar(&batchLimitFlag, "limit", 0, "Max videos taken from each playlist (0 = all)")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", config.DefaultConfig().Defaults.Concurrency, "Max concurrent workers (max 50)")

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	urls, err := CollectInputs(args, batchFileFlag)
	if err != nil {
		return fmt.Errorf("failed to collect inputs: %w", err)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no video URLs provided")
	}

	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	if batchExpandFlag {
		if urls, err = expandInputs(ctx, app, urls); err != nil {
			return err
		}
	}
	return processBatch(ctx, app, urls, false)
}

func expandInputs(ctx context.Context, app *App, urls []string) ([]string, error) {
	if err := ensureDependencies(ctx, app, nil); err != nil {
		return nil, err
	}
	expanded, err := app.PlaylistSvc.Expand(ctx, urls, batchLimitFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to expand playlists: %w", err)
	}
	return dedupe(expanded), nil
}

// boundConcurrency clamps n to 1..maxConcurrency.
func boundConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}

// processBatch runs urls through the batch service under an exclusive lock
// on the output directory and prints the report. plain forces the
// line-oriented display.
func processBatch(ctx context.Context, app *App, urls []string, plain bool) error {
	report, err := executeBatch(ctx, app, urls, plain)
	if report != nil {
		renderReport(os.Stdout, report, flags.verbose)
	}
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d videos failed", report.Failed, len(report.Results))
	}
	return nil
}

// executeBatch returns the report even when the run was interrupted; the
// error then wraps context.Canceled.
func executeBatch(ctx context.Context, app *App, urls []string, plain bool) (*domain.BatchReport, error) {
	lock, err := lockOutputDir(app.Config.Defaults.OutputDir)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	if err := ensureDependencies(ctx, app, nil); err != nil {
		return nil, err
	}

	svc, err := app.newBatchService(flags.noCache)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := application.BatchOptions{Concurrency: boundConcurrency(app.Config.Defaults.Concurrency)}
	var report *domain.BatchReport
	switch {
	case flags.quiet:
		report = svc.Run(ctx, urls, opts)
	case plain || !isatty.IsTerminal(os.Stdout.Fd()):
		opts.Display = tui.NewBatchProgress(os.Stdout, false).Update
		report = svc.Run(ctx, urls, opts)
	default:
		view := tui.StartBatchView(os.Stdout, len(urls), cancel)
		opts.Display = view.Update
		report = svc.Run(ctx, urls, opts)
		if err := view.Stop(); err != nil {
			app.Logger.Warn("batch view stopped with error", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	return report, nil
}

func runBatchInteractive(cmd *cobra.Command) error {
	input, err := prompt("Enter a list file, video URL or playlist URL: ")
	if err != nil {
		return err
	}
	if input == "" {
		fmt.Println("Cancelled")
		return nil
	}

	var urls []string
	if _, statErr := os.Stat(input); statErr == nil {
		if urls, err = ParseInputFile(input); err != nil {
			return err
		}
	} else {
		urls = []string{input}
	}

	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	urls, err = expandInputs(ctx, app, dedupe(urls))
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no videos found")
	}

	if len(urls) > 1 {
		urls, err = tui.RunURLList(urls)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Println("Cancelled")
			return nil
		}
	}

	ok, err := chooseDraftOptions(app, len(urls))
	if err != nil || !ok {
		return err
	}
	return processBatch(ctx, app, urls, false)
}
