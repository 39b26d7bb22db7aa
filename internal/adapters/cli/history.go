package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/adapters/history"
	"github.com/devbush/vdraft/internal/config"
)

var (
	historyLimitFlag     int
	historyOlderThanFlag string
)

// NewHistoryCmd creates the history subcommand
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded batch runs",
		RunE:  runHistoryList,
	}
	cmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to show")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the items of one run (an id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs",
		RunE:  runHistoryPrune,
	}
	pruneCmd.Flags().StringVar(&historyOlderThanFlag, "older-than", "30d", "Delete runs started before this age (e.g. 30d, 12h)")

	cmd.AddCommand(showCmd, pruneCmd)
	return cmd
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	store, err := app.History()
	if err != nil {
		return err
	}

	runs, err := store.ListRuns(context.Background(), historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := "running"
		if !r.FinishedAt.IsZero() {
			took = tui.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		rows = append(rows, []string{
			shortID(r.ID),
			tui.FormatDate(r.StartedAt),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Concurrency),
			took,
		})
	}
	fmt.Println(renderTable(
		[]string{"Run", "Started", "Items", "OK", "Failed", "Workers", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	store, err := app.History()
	if err != nil {
		return err
	}

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if errors.Is(err, history.ErrRunNotFound) {
		return fmt.Errorf("no run matches %q", args[0])
	}
	if err != nil {
		return err
	}
	items, err := store.RunItems(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s started %s: %d/%d succeeded\n", run.ID, tui.FormatDate(run.StartedAt), run.Succeeded, run.Total)

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		status := "✓"
		detail := it.Title
		if !it.Success {
			status = "✗"
			detail = strings.TrimSpace(fmt.Sprintf("%s/%s %s", it.Stage, it.Kind, it.Message))
		} else if it.Cached {
			detail += " (cached)"
		}
		rows = append(rows, []string{
			strconv.Itoa(it.Index + 1),
			status,
			tui.Truncate(it.URL, 50),
			tui.Truncate(detail, 60),
			strconv.Itoa(it.Attempts),
			tui.FormatDuration(it.Elapsed),
		})
	}
	fmt.Println(renderTable(
		[]string{"#", "", "URL", "Result", "Attempts", "Time"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	age, err := config.ParseDuration(historyOlderThanFlag)
	if err != nil {
		return fmt.Errorf("invalid --older-than: %w", err)
	}

	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	store, err := app.History()
	if err != nil {
		return err
	}

	n, err := store.Prune(context.Background(), time.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d run(s)\n", n)
	return nil
}
