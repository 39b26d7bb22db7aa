package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/devbush/vdraft/internal/config"
)

// NewConfigCmd creates the config subcommand
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (API keys masked)",
		RunE:  runConfigShow,
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
		},
	}

	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, config.ConfigPath(), overwrite)
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, config.ConfigPath())
		},
	}

	cmd.AddCommand(showCmd, pathCmd, initCmd, validateCmd)
	return cmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(maskSecrets(app.Config))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
	fmt.Fprintln(out, "Set corrector.api_key (or export DEEPSEEK_API_KEY) to use --correct.")
	return nil
}

func runConfigValidate(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config path: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "Config file did not exist; defaults were used")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Fprintln(out, "Configuration valid")
	return nil
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Corrector.APIKey = maskKey(cfg.Corrector.APIKey)
	masked.Corrector.APIKeys = make([]string, len(cfg.Corrector.APIKeys))
	for i, k := range cfg.Corrector.APIKeys {
		masked.Corrector.APIKeys[i] = maskKey(k)
	}
	return &masked
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// withoutEnvKey returns a copy of cfg whose API key is dropped when it only
// came from the environment, so it is not written to disk.
func withoutEnvKey(cfg *config.Config) *config.Config {
	out := *cfg
	fromEnv := *cfg
	fromEnv.Corrector.APIKey = ""
	fromEnv.ApplyEnv()
	if fromEnv.Corrector.APIKey != "" && fromEnv.Corrector.APIKey == cfg.Corrector.APIKey {
		out.Corrector.APIKey = ""
	}
	return &out
}
