package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/devbush/vdraft/internal/adapters/cli/tui"
	"github.com/devbush/vdraft/internal/config"
)

var (
	profileDescFlag      string
	profileRenameFlag    string
	profileOverwriteFlag bool
)

// NewProfileCmd creates the profile subcommand
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage named configuration profiles",
		Long: `Profiles are named snapshots of the configuration. Save the current
settings (including flags given on the command line) with 'profile save',
then run any command with --profile <name>.`,
		RunE: runProfileList,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE:  runProfileList,
	}

	saveCmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save the current configuration as a profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileSave,
	}
	saveCmd.Flags().StringVarP(&profileDescFlag, "description", "d", "", "Profile description")
	saveCmd.Flags().BoolVar(&profileOverwriteFlag, "overwrite", false, "Replace an existing profile")

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a profile (API keys masked)",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileShow,
	}

	useCmd := &cobra.Command{
		Use:   "use <name>",
		Short: "Make a profile the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileUse,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileDelete,
	}

	exportCmd := &cobra.Command{
		Use:   "export <name> <file>",
		Short: "Export a profile to a YAML or TOML file",
		Args:  cobra.ExactArgs(2),
		RunE:  runProfileExport,
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a profile from a YAML or TOML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileImport,
	}
	importCmd.Flags().StringVar(&profileRenameFlag, "name", "", "Store under this name instead")
	importCmd.Flags().BoolVar(&profileOverwriteFlag, "overwrite", false, "Replace an existing profile")

	cmd.AddCommand(listCmd, saveCmd, showCmd, useCmd, deleteCmd, exportCmd, importCmd)
	return cmd
}

// profileStore does not need the full app, so profile commands still work
// when the current configuration is invalid.
func profileStore() *config.ProfileStore {
	return config.NewProfileStore(config.ProfilesDir())
}

func runProfileList(cmd *cobra.Command, args []string) error {
	infos, err := profileStore().List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No profiles saved yet")
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, p := range infos {
		rows = append(rows, []string{p.Name, p.Model, p.Provider, tui.FormatDate(p.UpdatedAt), p.Description})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Name", "Model", "Provider", "Updated", "Description"}, rows, nil))
	return nil
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := config.ValidateProfileName(name); err != nil {
		return err
	}
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	store := app.Profiles
	cfg := withoutEnvKey(app.Config)
	if store.Exists(name) {
		if !profileOverwriteFlag {
			return fmt.Errorf("profile %q exists (use --overwrite to replace it)", name)
		}
		err = store.Update(name, cfg, profileDescFlag)
	} else {
		err = store.Save(name, cfg, profileDescFlag)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' saved\n", name)
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	p, err := profileStore().Load(args[0])
	if err != nil {
		return err
	}
	masked := *p
	masked.Config = maskSecrets(p.Config)
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runProfileUse(cmd *cobra.Command, args []string) error {
	p, err := profileStore().Load(args[0])
	if err != nil {
		return err
	}
	if err := p.Config.Validate(); err != nil {
		return fmt.Errorf("profile %q is invalid: %w", p.Name, err)
	}
	if err := p.Config.SaveDefault(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' written to %s\n", p.Name, config.ConfigPath())
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	if err := profileStore().Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted\n", args[0])
	return nil
}

func runProfileExport(cmd *cobra.Command, args []string) error {
	if err := profileStore().Export(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' exported to %s\n", args[0], args[1])
	return nil
}

func runProfileImport(cmd *cobra.Command, args []string) error {
	name, err := profileStore().Import(args[0], profileRenameFlag, profileOverwriteFlag)
	if errors.Is(err, config.ErrProfileExists) {
		return fmt.Errorf("%w (use --overwrite to replace it)", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' imported\n", name)
	return nil
}
