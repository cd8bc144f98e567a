package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/isoline/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd groups the configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect configuration files",
	Long: `Create a configuration file with the default settings or print the
configuration resolved from files, ISOLINE_* environment variables and
defaults.

Examples:
  isoline config init
  isoline config init ~/.config/isoline/isoline.yaml
  isoline config show --format json`,
}

var configInitCmd = &cobra.Command{
	Use:          "init [file]",
	Short:        "Write the default configuration to a file",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			filename = args[0]
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(filename); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", filename)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := config.GenerateDefaultConfigFile(filename); err != nil {
			return fmt.Errorf("failed to write configuration: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", filename)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the resolved configuration",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()

		if info, _ := cmd.Flags().GetBool("sources"); info {
			GetConfigLoader().PrintConfigInfo(out)
			_, _ = fmt.Fprintln(out)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "yaml", "":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		default:
			return fmt.Errorf("invalid format %q (must be yaml or json)", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configShowCmd.Flags().String("format", "yaml", "output format: yaml, json")
	configShowCmd.Flags().Bool("sources", false, "also print where configuration is loaded from")
}
