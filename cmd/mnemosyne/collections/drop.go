package collectionscmder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
)

type dropCommander struct {
	name    string
	confirm bool

	cfg    *config.Config
	logger *slog.Logger
}

const dropLongDesc string = `Drop a collection and every record in it.

This cannot be undone. Without --confirm nothing is dropped and the
confirming command is printed instead. Dropping the configured memory
collection erases all long-term memory; "mnemosyne migrate" recreates it
empty.

Examples:
  mnemosyne collections drop scratch --confirm`

const dropShortDesc string = "Drop a collection"

func newDropCmd() *cobra.Command {
	cmder := &dropCommander{}

	cmd := &cobra.Command{
		Use:   "drop <name>",
		Short: dropShortDesc,
		Long:  dropLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = commoncmder.LoadConfig(cmd, commoncmder.StackFlagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.name = args[0]
			cmder.logger = commoncmder.NewLogger(cmd)
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.confirm, "confirm", false, "Confirm the drop")
	commoncmder.AddStackFlags(cmd)

	return cmd
}

func (c *dropCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.Service.DropCollection(ctx, c.name, c.confirm)
	if errors.Is(err, memory.ErrConfirmationRequired) {
		fmt.Fprintf(out, "\n  %s %s\n\n  Re-run with confirmation:\n\n    %s\n\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render(fmt.Sprintf("This drops collection %q and every record in it.", c.name)),
			cliui.KeyStyle.Render(res.Hint),
		)
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Dropped collection %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(res.Collection))
	if res.WasConfigured {
		fmt.Fprintf(out, "  %s %s\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render("That was the configured memory collection. Run `mnemosyne migrate` to recreate it."),
		)
	}
	fmt.Fprintln(out)
	return nil
}
