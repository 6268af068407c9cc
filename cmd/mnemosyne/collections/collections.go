// Package collectionscmder provides the collections command for listing and
// dropping record store collections.
package collectionscmder

import (
	"github.com/spf13/cobra"
)

const collectionsLongDesc string = `Manage record store collections.

Use subcommands to list or drop collections:
  mnemosyne collections list                    List every collection
  mnemosyne collections drop <name> --confirm   Drop a collection and all its records`

const collectionsShortDesc string = "Manage record store collections"

func NewCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"collection"},
		Short:   collectionsShortDesc,
		Long:    collectionsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDropCmd())

	return cmd
}
