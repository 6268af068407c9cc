// Package sessioncmder provides the session command for showing and
// rotating the CLI's current session.
package sessioncmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
)

type sessionCommander struct {
	verbose bool
}

const sessionLongDesc string = `Show the current CLI session.

The CLI keeps one current session id in session.json inside the
.mnemosyne/ directory. Commands that act on "this conversation", such as
"mnemosyne records" without --all, use it. The id is created on first use.

Examples:
  mnemosyne session
  mnemosyne session new`

const sessionShortDesc string = "Show the current CLI session"

func NewSessionCmd() *cobra.Command {
	cmder := &sessionCommander{}

	cmd := &cobra.Command{
		Use:   "session",
		Short: sessionShortDesc,
		Long:  sessionLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout(), commoncmder.ConfigDir(cmd))
		},
	}

	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Also show when the session was created")
	cmd.AddCommand(newNewCmd())

	return cmd
}

func (c *sessionCommander) run(out io.Writer, configDir string) error {
	state, err := dotdir.NewManager().CurrentSession(configDir)
	if err != nil {
		return err
	}

	if !c.verbose {
		fmt.Fprintln(out, state.ID)
		return nil
	}
	fmt.Fprintf(out, "%s  %s\n", state.ID, cliui.DimStyle.Render("created "+state.CreatedAt.Format("2006-01-02 15:04:05")))
	return nil
}

const newLongDesc string = `Start a new CLI session.

Replaces the current session id with a fresh one. Memories of the previous
session are kept; use "mnemosyne forget" to delete them.`

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new CLI session",
		Long:  newLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := dotdir.NewManager().NewSession(commoncmder.ConfigDir(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), state.ID)
			return nil
		},
	}
}
