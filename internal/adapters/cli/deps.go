package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewDepsCmd creates the deps subcommand
func NewDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Manage external tools (yt-dlp, ffmpeg, whisper.cpp)",
		RunE:  runDepsStatus,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependency status",
		RunE:  runDepsStatus,
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update yt-dlp to latest version",
		RunE:  runDepsUpdate,
	}

	installCmd := &cobra.Command{
		Use:       "install [yt-dlp|ffmpeg]",
		Short:     "Install yt-dlp and ffmpeg",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"yt-dlp", "ffmpeg"},
		RunE:      runDepsInstall,
	}

	cmd.AddCommand(statusCmd, updateCmd, installCmd)
	return cmd
}

func runDepsStatus(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var rows [][]string

	if app.Downloader.IsAvailable() {
		version, err := app.Downloader.Version(ctx)
		if err != nil {
			version = "unknown"
		}
		rows = append(rows, []string{"yt-dlp", "installed", version, app.Downloader.GetBinaryPath()})
	} else {
		rows = append(rows, []string{"yt-dlp", "not found", "", "run 'vdraft deps install yt-dlp'"})
	}

	if app.FFmpeg.IsAvailable() {
		rows = append(rows, []string{"ffmpeg", "installed", "", app.FFmpeg.GetBinaryPath()})
	} else {
		rows = append(rows, []string{"ffmpeg", "not found", "", app.FFmpeg.Instructions()})
	}

	if app.Transcriber.IsAvailable() {
		rows = append(rows, []string{"whisper.cpp", "installed", "", app.Config.Paths.Whisper})
	} else {
		rows = append(rows, []string{"whisper.cpp", "not found", "", "brew install whisper-cpp, or set paths.whisper"})
	}

	models := app.Transcriber.AvailableModels()
	downloaded := 0
	for _, m := range models {
		if m.Downloaded {
			downloaded++
		}
	}
	rows = append(rows, []string{"models", fmt.Sprintf("%d/%d downloaded", downloaded, len(models)), "", ""})

	fmt.Println(renderTable([]string{"Tool", "Status", "Version", "Location"}, rows, nil))
	return nil
}

func runDepsUpdate(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	if !app.Downloader.IsAvailable() {
		return fmt.Errorf("yt-dlp is not installed. Run 'vdraft deps install' first")
	}

	fmt.Println("Updating yt-dlp...")

	ctx, stop := interruptContext()
	defer stop()
	if err := app.Downloader.Update(ctx); err != nil {
		return err
	}

	fmt.Println("yt-dlp updated")
	return nil
}

func runDepsInstall(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	want := func(name string) bool { return len(args) == 0 || args[0] == name }

	if want("yt-dlp") {
		if app.Downloader.IsAvailable() {
			fmt.Println("yt-dlp is already installed")
		} else {
			fmt.Println("Installing yt-dlp...")
			if err := app.Downloader.Install(ctx, printDownloadProgress); err != nil {
				return err
			}
			fmt.Println("\nyt-dlp installed")
		}
	}

	if want("ffmpeg") {
		if app.FFmpeg.IsAvailable() {
			fmt.Println("ffmpeg is already installed")
		} else {
			fmt.Println("Installing ffmpeg...")
			if err := app.FFmpeg.Install(ctx, printDownloadProgress); err != nil {
				return fmt.Errorf("%w (or install it yourself: %s)", err, app.FFmpeg.Instructions())
			}
			app.refreshDownloader()
			fmt.Println("\nffmpeg installed")
		}
	}

	return nil
}
