// Package initcmder provides the init command for initializing a local
// .mnemosyne directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemosyne/pkg/config"
)

const (
	dirName = ".mnemosyne"
)

const initLongDesc string = `Initialize a new .mnemosyne/ directory in the current working directory.

Creates a local .mnemosyne/ directory that takes precedence over the default
~/.mnemosyne/ directory for configuration, the current session, the sqlite
record store, migration backups and server logs.

Use --preset to seed config.toml with provider defaults.

Examples:
  mnemosyne init
  mnemosyne init --preset openai`

const initShortDesc string = "Initialize a local .mnemosyne/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", fmt.Sprintf("Provider preset for config.toml (%v)", config.ValidPresetNames()))

	return cmd
}

func runInit(cmd *cobra.Command, preset string) error {
	out := cmd.OutOrStdout()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .mnemosyne directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .mnemosyne directory: %s\n", dir)
	}

	if preset == "" {
		return nil
	}

	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return err
	}
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s preset to %s\n", preset, cfger.GetTarget())
	return nil
}
