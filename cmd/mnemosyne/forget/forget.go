// Package forgetcmder provides the forget command for deleting every memory
// of a session.
package forgetcmder

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

type forgetCommander struct {
	sessionID string
	confirm   bool

	cfg    *config.Config
	logger *slog.Logger
}

const forgetLongDesc string = `Delete every memory of a session from the configured collection.

This cannot be undone. Without --confirm nothing is deleted and the
confirming command is printed instead. Quotes and backticks around the
session id are ignored, so ids can be pasted straight from chat output.

Examples:
  mnemosyne forget chat_42 --confirm
  mnemosyne forget "$(mnemosyne session)" --confirm`

const forgetShortDesc string = "Delete every memory of a session"

func NewForgetCmd() *cobra.Command {
	cmder := &forgetCommander{}

	cmd := &cobra.Command{
		Use:   "forget <session>",
		Short: forgetShortDesc,
		Long:  forgetLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = commoncmder.LoadConfig(cmd, commoncmder.StackFlagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.sessionID = args[0]
			cmder.logger = commoncmder.NewLogger(cmd)
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.confirm, "confirm", false, "Confirm the delete")
	commoncmder.AddStackFlags(cmd)

	return cmd
}

func (c *forgetCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.Service.DeleteSession(ctx, c.sessionID, c.confirm)
	if errors.Is(err, memory.ErrConfirmationRequired) {
		fmt.Fprintf(out, "\n  %s %s\n\n  Re-run with confirmation:\n\n    %s\n\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render(fmt.Sprintf("This deletes every memory of session %q.", res.SessionID)),
			cliui.KeyStyle.Render(res.Hint),
		)
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Deleted %s from %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(fmt.Sprintf("%d memories of %s", res.Deleted, res.SessionID)),
		cliui.KeyStyle.Render(res.Collection),
	)
	if res.FlushErr != nil {
		fmt.Fprintf(out, "  %s %s\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render("Flush failed; the delete may not be durable yet: "+res.FlushError),
		)
	}
	fmt.Fprintln(out)
	return nil
}
