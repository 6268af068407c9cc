package collectionscmder

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
)

type listCommander struct {
	cfg    *config.Config
	logger *slog.Logger
}

const listLongDesc string = `List the collections in the record store.

The configured memory collection (vector_store.collection) is highlighted,
and a warning is shown when it does not exist yet. Run "mnemosyne migrate"
to create it.

Examples:
  mnemosyne collections list
  mnemosyne collections list --vector-store-provider qdrant --vector-store-target localhost:6334`

const listShortDesc string = "List collections"

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = commoncmder.LoadConfig(cmd, commoncmder.StackFlagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.logger = commoncmder.NewLogger(cmd)
			return cmder.run(cmd)
		},
	}

	commoncmder.AddStackFlags(cmd)

	return cmd
}

func (c *listCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	view, err := st.Service.ListCollections(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.HeaderStyle.Render("Collections in"),
		cliui.DimStyle.Render(c.cfg.VectorStore.Provider),
	)

	if len(view.Collections) == 0 {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("No collections."))
	}
	for _, name := range view.Collections {
		if name == view.Configured {
			fmt.Fprintf(out, "  %s %s %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(name), cliui.DimStyle.Render("(configured)"))
			continue
		}
		fmt.Fprintf(out, "    %s\n", cliui.ValueStyle.Render(name))
	}

	if !view.ConfiguredExists {
		fmt.Fprintf(out, "\n  %s %s\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render(fmt.Sprintf("Configured collection %q does not exist. Run `mnemosyne migrate` to create it.", view.Configured)),
		)
	}
	fmt.Fprintln(out)
	return nil
}
