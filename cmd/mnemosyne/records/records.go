// Package recordscmder provides the records command for listing the newest
// stored memories.
package recordscmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
)

type recordsCommander struct {
	session string
	all     bool
	limit   int
	json    bool

	cfg    *config.Config
	logger *slog.Logger
}

const recordsLongDesc string = `List the newest memories, newest first.

By default only memories of the current CLI session are listed (see
"mnemosyne session"). Use --session to pick another session or --all to list
every session. At most 10000 records are read before sorting; when a
collection holds more, the listing is marked as truncated.

Examples:
  mnemosyne records
  mnemosyne records --all --limit 50
  mnemosyne records --session chat_42 --json`

const recordsShortDesc string = "List the newest memories"

func NewRecordsCmd() *cobra.Command {
	cmder := &recordsCommander{}

	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"ls"},
		Short:   recordsShortDesc,
		Long:    recordsLongDesc,
		Args:    cobra.NoArgs,
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

	cmd.Flags().StringVar(&cmder.session, "session", "", "List memories of this session")
	cmd.Flags().BoolVarP(&cmder.all, "all", "a", false, "List memories of every session")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", memory.DefaultListLimit, "Number of memories to show")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the result as JSON")
	commoncmder.AddStackFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("all", "session")

	return cmd
}

func (c *recordsCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionID := c.session
	if !c.all && sessionID == "" {
		sessionID, err = st.Service.SessionID()
		if err != nil {
			return fmt.Errorf("resolving current session: %w", err)
		}
	}

	res, err := st.Service.ListLatest(ctx, "", sessionID, c.limit)
	if err != nil {
		return err
	}

	if c.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	render(out, res, cliui.TerminalWidth(os.Stdout))
	return nil
}

func render(w io.Writer, res *memory.ListResult, width int) {
	scope := "all sessions"
	if res.SessionID != "" {
		scope = "session " + res.SessionID
	}
	fmt.Fprintf(w, "\n  %s %s %s\n\n",
		cliui.HeaderStyle.Render("Memories in"),
		cliui.KeyStyle.Render(res.Collection),
		cliui.DimStyle.Render("("+scope+")"),
	)

	if len(res.Records) == 0 {
		fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("No memories found."))
		return
	}

	for i, r := range res.Records {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%2d.", i+1)),
			cliui.ValueStyle.Render(cliui.FormatUnix(r.CreateTime)),
			cliui.DimStyle.Render(r.SessionID+" · "+r.ID),
		)
		fmt.Fprintf(w, "      %s\n", cliui.Truncate(memory.Preview(r.Content), max(width-8, 20)))
	}

	fmt.Fprintf(w, "\n  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d of %d fetched", len(res.Records), res.Fetched)))
	if res.Truncated {
		fmt.Fprintf(w, "  %s %s\n", cliui.WarnMark,
			cliui.WarnStyle.Render("Listing is truncated: the collection holds more records than were read."))
	}
	fmt.Fprintln(w)
}
