package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/config"
)

// globalFlags holds the persistent flags. Only flags the user actually set
// override the loaded configuration.
type globalFlags struct {
	profile     string
	model       string
	language    string
	formats     []string
	outputDir   string
	provider    string
	llmModel    string
	concurrency int
	correct     bool
	summarize   bool
	keywords    bool
	noCache     bool
	quiet       bool
	verbose     bool

	changed func(name string) bool
}

var flags globalFlags

func (f *globalFlags) apply(cfg *config.Config) {
	set := f.changed
	if set == nil {
		return
	}
	if set("model") {
		cfg.Defaults.Model = f.model
	}
	if set("language") {
		cfg.Defaults.Language = f.language
	}
	if set("format") {
		cfg.Defaults.Formats = f.formats
	}
	if set("output-dir") {
		cfg.Defaults.OutputDir = f.outputDir
	}
	if set("concurrency") {
		cfg.Defaults.Concurrency = f.concurrency
	}
	if set("correct") {
		cfg.Corrector.Enabled = f.correct
	}
	if set("summarize") {
		cfg.Corrector.Summarize = f.summarize
	}
	if set("keywords") {
		cfg.Corrector.Keywords = f.keywords
	}
	if set("provider") {
		if f.provider != cfg.Corrector.Provider {
			// a key for one provider is no use to another
			cfg.Corrector.APIKey = ""
			cfg.Corrector.APIKeys = nil
			cfg.Corrector.BaseURL = ""
			cfg.Corrector.Model = ""
		}
		cfg.Corrector.Provider = f.provider
	}
	if set("llm-model") {
		cfg.Corrector.Model = f.llmModel
	}
	cfg.ApplyEnv()
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vdraft [video-url]",
		Short: "Turn videos into written drafts",
		Long: `vdraft downloads the audio of online videos, transcribes it locally with
whisper.cpp, optionally corrects and summarizes the text with a language
model, and writes the result as documents.

Provide a video URL to process it, or run without arguments for an
interactive menu.`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.profile, "profile", "p", "", "Use a saved configuration profile")
	pf.StringVar(&flags.model, "model", "small", "Whisper model: tiny, base, small, medium, large")
	pf.StringVarP(&flags.language, "language", "l", "auto", "Spoken language code (auto, en, zh, fr, ...)")
	pf.StringSliceVarP(&flags.formats, "format", "F", []string{"md"}, "Output formats: md, txt, docx, srt, vtt")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for written documents")
	pf.BoolVar(&flags.correct, "correct", false, "Correct the transcript with a language model")
	pf.BoolVar(&flags.summarize, "summarize", false, "Write a summary document")
	pf.BoolVar(&flags.keywords, "keywords", false, "Extract keywords")
	pf.StringVar(&flags.provider, "provider", config.ProviderDeepSeek, "Language model provider: deepseek, openai, gemini, anthropic")
	pf.StringVar(&flags.llmModel, "llm-model", "", "Language model name (provider default when empty)")
	pf.BoolVar(&flags.noCache, "no-cache", false, "Ignore cached transcripts")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Debug logging on stderr")

	addProcessFlags(rootCmd)

	rootCmd.AddCommand(NewProcessCmd())
	rootCmd.AddCommand(NewBatchCmd())
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewModelCmd())
	rootCmd.AddCommand(NewDepsCmd())
	rootCmd.AddCommand(NewHistoryCmd())
	rootCmd.AddCommand(NewProfileCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}

var globalApp *App

// GetApp returns the app for this invocation, creating it on first use
// with the flags set on cmd.
func GetApp(cmd *cobra.Command) (*App, error) {
	if globalApp == nil {
		flags.changed = cmd.Flags().Changed
		app, err := NewApp(&flags)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize: %w", err)
		}
		globalApp = app
	}
	return globalApp, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return runProcess(cmd, args[0])
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return cmd.Help()
	}
	return runInteractiveMenu(cmd)
}

func runInteractiveMenu(cmd *cobra.Command) error {
	options := []tui.MenuOption{
		{Label: "Process a video", Value: "process"},
		{Label: "Process a list or playlist", Value: "batch"},
		{Label: "Show run history", Value: "history"},
		{Label: "Manage cache", Value: "cache"},
		{Label: "Check dependencies", Value: "deps"},
	}

	selected, err := tui.RunMenu("", options)
	if err != nil {
		return err
	}

	switch selected {
	case "process":
		return runProcessInteractive(cmd)
	case "batch":
		return runBatchInteractive(cmd)
	case "history":
		return runHistoryList(cmd, nil)
	case "cache":
		return runCacheStatus(cmd, nil)
	case "deps":
		return runDepsStatus(cmd, nil)
	case "":
		fmt.Println("Cancelled")
	}
	return nil
}

// prompt reads one trimmed line from stdin.
func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// chooseDraftOptions asks what to produce and writes the answer into the
// app configuration. It reports false when the user cancelled.
func chooseDraftOptions(app *App, videos int) (bool, error) {
	c := app.Config
	opts, err := tui.RunOptionsSelector(videos, config.SupportedFormats, tui.DraftOptions{
		Formats:   c.Defaults.Formats,
		Correct:   c.Corrector.Enabled,
		Summarize: c.Corrector.Summarize,
		Keywords:  c.Corrector.Keywords,
	})
	if err != nil || opts == nil {
		return false, err
	}
	if len(opts.Formats) > 0 {
		c.Defaults.Formats = opts.Formats
	}
	c.Corrector.Enabled = opts.Correct
	c.Corrector.Summarize = opts.Summarize
	c.Corrector.Keywords = opts.Keywords
	if err := c.Validate(); err != nil {
		return false, err
	}
	return true, nil
}

func runProcessInteractive(cmd *cobra.Command) error {
	input, err := prompt("Enter video URL: ")
	if err != nil {
		return err
	}
	if input == "" {
		fmt.Println("Cancelled")
		return nil
	}

	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	ok, err := chooseDraftOptions(app, 1)
	if err != nil || !ok {
		return err
	}
	return runProcess(cmd, input)
}

// interruptContext is cancelled on the first ctrl+c.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Execute runs the CLI
func Execute() int {
	err := NewRootCmd().Execute()
	if globalApp != nil {
		_ = globalApp.Close()
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
