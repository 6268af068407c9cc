// Package commoncmder holds the plumbing shared by mnemosyne commands:
// config loading, logger construction and opening the memory stack.
package commoncmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
	"github.com/papercomputeco/mnemosyne/pkg/logger"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	memoryutils "github.com/papercomputeco/mnemosyne/pkg/memory/utils"
)

// Persistent flag names registered on the root command.
const (
	FlagDebug     = "debug"
	FlagConfigDir = "config-dir"
)

// StackFlagKeys are the registry keys of every flag that shapes the memory
// stack.
var StackFlagKeys = []string{
	config.FlagCollection,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagSQLite,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagSummaryProv,
	config.FlagSummaryTgt,
	config.FlagSummaryModel,
	config.FlagEventProvider,
}

// stackFlags receives flag values. Commands read the merged values through
// viper, so these are never consulted directly.
type stackFlags struct {
	collection     string
	vectorProvider string
	vectorTarget   string
	sqlitePath     string
	embedProvider  string
	embedTarget    string
	embedModel     string
	embedDims      uint
	summaryProv    string
	summaryTarget  string
	summaryModel   string
	eventProvider  string
}

// AddStackFlags registers every flag in StackFlagKeys on cmd.
func AddStackFlags(cmd *cobra.Command) {
	f := &stackFlags{}
	config.AddStringFlag(cmd, config.Flags, config.FlagCollection, &f.collection)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &f.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &f.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &f.embedProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &f.embedTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &f.embedModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &f.embedDims)
	config.AddStringFlag(cmd, config.Flags, config.FlagSummaryProv, &f.summaryProv)
	config.AddStringFlag(cmd, config.Flags, config.FlagSummaryTgt, &f.summaryTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagSummaryModel, &f.summaryModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventProvider, &f.eventProvider)
}

// ConfigDir returns the --config-dir override, empty when unset.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString(FlagConfigDir)
	return dir
}

// LoadConfig merges flags, environment, config.toml and defaults. Only the
// flags named by keys take part in the merge.
func LoadConfig(cmd *cobra.Command, keys []string) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, keys)
	return config.FromViper(v), nil
}

// NewLogger returns the CLI logger. Records go to stderr so command output
// on stdout stays pipeable.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(cliui.IsTerminal(os.Stderr)),
		logger.WithWriter(os.Stderr),
	)
}

// CurrentSession returns a session source backed by the dot directory.
func CurrentSession(configDir string) memory.SessionSource {
	ddm := dotdir.NewManager()
	return memory.SessionSourceFunc(func() (string, error) {
		state, err := ddm.CurrentSession(configDir)
		if err != nil {
			return "", err
		}
		return state.ID, nil
	})
}

// OpenStack builds the memory stack for a CLI command. The caller closes it.
func OpenStack(ctx context.Context, cmd *cobra.Command, cfg *config.Config, l *slog.Logger) (*memoryutils.Stack, error) {
	configDir := ConfigDir(cmd)
	return memoryutils.NewService(ctx, &memoryutils.NewServiceOpts{
		Config:    cfg,
		ConfigDir: configDir,
		Sessions:  CurrentSession(configDir),
		Logger:    l,
	})
}
