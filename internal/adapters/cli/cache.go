package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
)

var clearAllFlag bool

// NewCacheCmd creates the cache subcommand
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached transcripts",
		RunE:  runCacheStatus,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE:  runCacheClear,
	}
	clearCmd.Flags().BoolVar(&clearAllFlag, "all", false, "Clear all cache entries")

	showCmd := &cobra.Command{
		Use:   "show <video-url>",
		Short: "Show the cached transcript of a video",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheShow,
	}

	forgetCmd := &cobra.Command{
		Use:   "forget <video-url>",
		Short: "Drop the cached transcript of a video",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheForget,
	}

	cmd.AddCommand(clearCmd, showCmd, forgetCmd)

	return cmd
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	stats, err := app.CacheSvc.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Cache Statistics:")
	fmt.Printf("  Items: %d\n", stats.ItemCount)
	fmt.Printf("  Size:  %s\n", tui.FormatSize(stats.TotalSize))
	fmt.Printf("  TTL:   %s\n", app.Config.Defaults.CacheTTL)
	fmt.Println()

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if clearAllFlag {
		if err := app.CacheSvc.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("All cache entries cleared")
	} else {
		cleaned, err := app.CacheSvc.CleanExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired entries\n", cleaned)
	}

	return nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	item, found, err := app.CacheSvc.Lookup(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("Not cached")
		return nil
	}

	fmt.Println()
	if item.Media != nil {
		fmt.Printf("  Title:    %s\n", item.Media.Title)
		fmt.Printf("  Duration: %s\n", tui.FormatDuration(secondsToDuration(item.Media.DurationSeconds)))
	}
	if item.Transcript != nil {
		fmt.Printf("  Language: %s\n", item.Transcript.Language)
		fmt.Printf("  Segments: %d\n", len(item.Transcript.Segments))
	}
	fmt.Printf("  Cached:   %s\n", tui.FormatDate(item.CreatedAt))
	fmt.Printf("  Expires:  %s\n", tui.FormatDate(item.ExpiresAt))
	fmt.Println()
	if item.Transcript != nil {
		fmt.Println(item.Transcript.ToText())
	}
	return nil
}

func runCacheForget(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	if err := app.CacheSvc.Forget(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("Cache entry removed")
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
