package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/adapters/output"
	"github.com/devbush/vdraft/internal/adapters/ytdlp"
	"github.com/devbush/vdraft/internal/application"
	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

var (
	keepAudioFlag bool
	printFlag     bool
)

func addProcessFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&keepAudioFlag, "keep-audio", false, "Copy the extracted audio next to the documents")
	cmd.Flags().BoolVar(&printFlag, "print", false, "Print the final text to stdout")
}

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <video-url>",
		Short: "Process a single video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0])
		},
	}
	addProcessFlags(cmd)
	return cmd
}

func processSteps(app *App) []tui.Step {
	steps := []tui.Step{
		{Name: "Checking dependencies"},
		{Name: "Downloading audio", Stage: domain.StageDownload},
		{Name: "Transcribing", Stage: domain.StageTranscribe},
	}
	c := app.Config.Corrector
	if c.Enabled || c.Summarize || c.Keywords {
		steps = append(steps, tui.Step{Name: "Running language model", Stage: domain.StageCorrect})
	}
	return append(steps, tui.Step{Name: "Writing documents", Stage: domain.StageFormat})
}

func runProcess(cmd *cobra.Command, input string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	redraw := isatty.IsTerminal(os.Stdout.Fd())
	progress := tui.NewProgressDisplay(os.Stdout, processSteps(app), flags.quiet, redraw)

	progress.StartStep(0)
	if err := ensureDependencies(ctx, app, func(d, t int64) { progress.UpdateProgress(0, d, t) }); err != nil {
		progress.FailStep(0, err.Error())
		return err
	}
	progress.CompleteStep(0)

	collaborators, err := app.workerCollaborators(flags.noCache)
	if err != nil {
		return err
	}
	collaborators = append(collaborators, application.WithEventSink(progress))
	worker := application.NewWorker(app.Downloader, app.Transcriber, app.workerOptions(flags.noCache), collaborators...)

	var spinnerDone chan struct{}
	if redraw && !flags.quiet {
		spinnerDone = progress.StartSpinner()
	}
	result := worker.Process(ctx, domain.WorkItem{URL: input})
	if spinnerDone != nil {
		close(spinnerDone)
	}

	if !result.Success {
		if result.Error == nil {
			return fmt.Errorf("processing failed")
		}
		return fmt.Errorf("%s failed: %s", result.Error.Stage, result.Error.Message)
	}
	progress.SkipPending()

	files := result.Artifacts.OutputFiles
	if keepAudioFlag && result.Artifacts.AudioPath != "" {
		audio, err := keepAudio(result.Artifacts, input, app.Config.Defaults.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to copy audio: %w", err)
		}
		files = append(files, audio)
	}

	progress.Complete(files)
	if printFlag {
		fmt.Println(finalText(result.Artifacts))
	}
	return nil
}

// keepAudio copies the extracted audio next to the documents, named like
// them.
func keepAudio(artifacts *domain.Artifacts, sourceURL, outputDir string) (string, error) {
	base := output.DraftName(artifacts.Title, sourceURL)
	dst := filepath.Join(outputDir, base+filepath.Ext(artifacts.AudioPath))
	return dst, copyFile(artifacts.AudioPath, dst)
}

func finalText(artifacts *domain.Artifacts) string {
	if artifacts.CorrectedText != "" {
		return artifacts.CorrectedText
	}
	return artifacts.Transcript
}

// ensureDependencies installs what can be installed and explains what
// cannot: yt-dlp and ffmpeg are fetched, whisper.cpp must already exist,
// and the configured speech model is downloaded.
func ensureDependencies(ctx context.Context, app *App, progress func(downloaded, total int64)) error {
	if _, err := ensureTool(ctx, app.Downloader, progress); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}

	installed, err := ensureTool(ctx, app.FFmpeg, progress)
	if err != nil {
		return fmt.Errorf("failed to install ffmpeg (%s): %w", app.FFmpeg.Instructions(), err)
	}
	if installed {
		app.refreshDownloader()
	}

	if !app.Transcriber.IsAvailable() {
		return fmt.Errorf("%w: install whisper.cpp (brew install whisper-cpp) or set paths.whisper in %s",
			domain.ErrWhisperNotFound, config.ConfigPath())
	}

	return ensureModel(ctx, app.Transcriber, app.Config.Defaults.Model, progress)
}

// ensureTool installs tool when it is missing and reports whether it did.
func ensureTool(ctx context.Context, tool ports.ToolManager, progress func(downloaded, total int64)) (bool, error) {
	if tool.IsAvailable() {
		return false, nil
	}
	if err := tool.Install(ctx, progress); err != nil {
		return false, err
	}
	return true, nil
}

func ensureModel(ctx context.Context, models ports.ModelManager, model string, progress func(downloaded, total int64)) error {
	if models.IsModelDownloaded(model) {
		return nil
	}
	if err := models.DownloadModel(ctx, model, progress); err != nil {
		return fmt.Errorf("failed to download model %s: %w", model, err)
	}
	return nil
}

// refreshDownloader rebuilds the downloader so it sees a newly installed
// ffmpeg.
func (a *App) refreshDownloader() {
	a.Downloader = ytdlp.NewDownloader(a.Config.Paths.YtDlp, a.FFmpeg.GetBinaryPath())
	a.PlaylistSvc = application.NewPlaylistService(a.Downloader)
}
