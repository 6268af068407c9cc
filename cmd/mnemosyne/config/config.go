// Package configcmder provides the config command for managing persistent
// mnemosyne configuration stored in the .mnemosyne/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
)

const configLongDesc string = `Manage persistent mnemosyne configuration.

Configuration is stored as config.toml in the .mnemosyne/ directory and
provides default values for command flags. CLI flags and MNEMOSYNE_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.model, embedding.dimensions,
  memory.retention, memory.system_retention, memory.summary_interval,
  migration.workers, summary.model, api.listen, eventstream.provider

Use subcommands to get, set, or list configuration values:
  mnemosyne config set <key> <value>    Set a configuration value
  mnemosyne config get <key>            Get a configuration value
  mnemosyne config list                 List all configuration values

Examples:
  mnemosyne config set vector_store.provider qdrant
  mnemosyne config set embedding.model mxbai-embed-large
  mnemosyne config get memory.retention
  mnemosyne config list`

const configShortDesc string = "Manage persistent mnemosyne configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// display masks credentials.
func display(key, value string) string {
	if value == "" || !config.IsSecretKey(key) {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
