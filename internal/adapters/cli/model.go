package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/ports"
)

// NewModelCmd creates the model subcommand
func NewModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage Whisper models",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		RunE:  runModelList,
	}

	downloadCmd := &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelDownload,
	}

	removeCmd := &cobra.Command{
		Use:   "remove <model>",
		Short: "Remove a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelRemove,
	}

	cmd.AddCommand(listCmd, downloadCmd, removeCmd)
	return cmd
}

func runModelList(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	writeModelTable(cmd.OutOrStdout(), app.Transcriber, app.Config.Defaults.Model)
	return nil
}

func writeModelTable(w io.Writer, models ports.ModelManager, defaultModel string) {
	var rows [][]string
	for _, m := range models.AvailableModels() {
		status := "not downloaded"
		if m.Downloaded {
			status = "downloaded"
		}
		if m.Name == defaultModel {
			status += " (default)"
		}
		rows = append(rows, []string{m.Name, tui.FormatSize(m.Size), status, m.Description})
	}

	fmt.Fprintln(w, renderTable(
		[]string{"Model", "Size", "Status", "Description"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func runModelDownload(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	model := args[0]

	if app.Transcriber.IsModelDownloaded(model) {
		fmt.Printf("Model '%s' is already downloaded\n", model)
		return nil
	}

	fmt.Printf("Downloading model '%s'...\n", model)

	ctx, stop := interruptContext()
	defer stop()

	err = app.Transcriber.DownloadModel(ctx, model, printDownloadProgress)
	if err != nil {
		return err
	}

	fmt.Println("\nModel downloaded successfully")
	return nil
}

func runModelRemove(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	model := args[0]

	if !app.Transcriber.IsModelDownloaded(model) {
		fmt.Printf("Model '%s' is not downloaded\n", model)
		return nil
	}

	if err := app.Transcriber.DeleteModel(model); err != nil {
		return err
	}

	fmt.Printf("Model '%s' removed\n", model)
	return nil
}

func printDownloadProgress(downloaded, total int64) {
	if total > 0 {
		pct := float64(downloaded) / float64(total) * 100
		fmt.Printf("\rProgress: %.1f%% (%s / %s)", pct, tui.FormatSize(downloaded), tui.FormatSize(total))
	}
}
