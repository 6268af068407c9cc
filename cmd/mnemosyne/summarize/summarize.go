// Package summarizecmder provides the summarize command, which stores one
// memory for a conversation history on demand.
package summarizecmder

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
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
)

type summarizeCommander struct {
	historyFile   string
	sessionID     string
	personalityID string
	json          bool

	cfg    *config.Config
	logger *slog.Logger
}

const summarizeLongDesc string = `Summarize a conversation history into a stored memory.

The history is a JSON array of chat messages ({"role", "content", "name"}),
read from --history-file or from stdin when the file is "-". The summary is
generated, embedded and inserted into the configured collection right away,
ignoring the summary interval.

Examples:
  mnemosyne summarize --history-file chat.json
  cat chat.json | mnemosyne summarize -f - --session chat_42 --personality bard`

const summarizeShortDesc string = "Summarize a conversation into a memory"

func NewSummarizeCmd() *cobra.Command {
	cmder := &summarizeCommander{}

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: summarizeShortDesc,
		Long:  summarizeLongDesc,
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

	cmd.Flags().StringVarP(&cmder.historyFile, "history-file", "f", "", `JSON message array to summarize ("-" reads stdin)`)
	cmd.Flags().StringVar(&cmder.sessionID, "session", "", "Session the memory belongs to (default: current session)")
	cmd.Flags().StringVar(&cmder.personalityID, "personality", "", "Personality the memory belongs to")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the stored memory as JSON")
	commoncmder.AddStackFlags(cmd)
	_ = cmd.MarkFlagRequired("history-file")

	return cmd
}

func (c *summarizeCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	history, err := readHistory(cmd.InOrStdin(), c.historyFile)
	if err != nil {
		return err
	}

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionID := c.sessionID
	if sessionID == "" {
		sessionID, err = st.Service.SessionID()
		if err != nil {
			return fmt.Errorf("resolving current session: %w", err)
		}
	}

	res, err := st.Service.DebugSummary(ctx, sessionID, c.personalityID, history)
	if err != nil {
		return err
	}

	if c.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	render(out, res, cliui.IsTerminal(os.Stdout))
	return nil
}

// readHistory decodes a message array from path, or from stdin for "-".
func readHistory(stdin io.Reader, path string) ([]retention.Message, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var history []retention.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decoding history %s: %w", path, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("history %s holds no messages", path)
	}
	return history, nil
}

func render(w io.Writer, res *summary.Result, pretty bool) {
	fmt.Fprintf(w, "\n  %s Stored memory %s for session %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(res.RecordID),
		cliui.ValueStyle.Render(res.SessionID),
	)

	body := res.Summary
	if pretty {
		if rendered, err := cliui.RenderMarkdown(res.Summary); err == nil {
			body = rendered
		}
	}
	fmt.Fprintln(w, body)
}
