// Package mnemosynecmder is the root of the mnemosyne command tree.
package mnemosynecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/auth"
	collectionscmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/collections"
	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	configcmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/config"
	filtercmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/filter"
	forgetcmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/forget"
	initcmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/init"
	logscmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/logs"
	migratecmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/migrate"
	recordscmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/records"
	servecmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/serve"
	sessioncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/session"
	summarizecmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/summarize"
	versioncmder "github.com/papercomputeco/mnemosyne/cmd/version"
)

const mnemosyneLongDesc string = `Mnemosyne is long-term memory for chat assistants.

Conversations are summarized into memories and stored as embedded records in
a vector store. Mnemosyne manages those records: listing, forgetting,
migrating to a new embedding model, and trimming the memory blocks that are
injected into prompts.

Common commands:
  mnemosyne records            List the newest memories of the current session
  mnemosyne forget <session>   Delete every memory of a session
  mnemosyne migrate            Re-embed memories after an embedding model change
  mnemosyne serve              Run the HTTP API and MCP server`

const mnemosyneShortDesc string = "Mnemosyne - long-term memory for chat assistants"

func NewMnemosyneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mnemosyne",
		Short:        mnemosyneShortDesc,
		Long:         mnemosyneLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP(commoncmder.FlagDebug, "d", false, "Enable debug logging")
	cmd.PersistentFlags().String(commoncmder.FlagConfigDir, "", "Override path to the .mnemosyne/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(collectionscmder.NewCollectionsCmd())
	cmd.AddCommand(recordscmder.NewRecordsCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(sessioncmder.NewSessionCmd())
	cmd.AddCommand(migratecmder.NewMigrateCmd())
	cmd.AddCommand(summarizecmder.NewSummarizeCmd())
	cmd.AddCommand(filtercmder.NewFilterCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(logscmder.NewLogsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
