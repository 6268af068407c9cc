// Package filtercmder provides the filter command, which applies the memory
// retention policies to a prompt.
package filtercmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
)

type filterCommander struct {
	file    string
	k       int
	systemK int

	cfg *config.Config
}

const filterLongDesc string = `Apply memory retention to a prompt.

Reads a prompt as JSON, either {"system_prompt": ..., "messages": [...]} or
a bare message array, and prints the filtered prompt as JSON. Only the memory
blocks (<Mnemosyne>...</Mnemosyne>) of the last --k distinct memories survive
in user messages and the system prompt; --system-k bounds system messages.
A negative budget keeps everything and 0 strips everything.

Examples:
  mnemosyne filter --file prompt.json
  cat prompt.json | mnemosyne filter --k 1 --system-k 0`

const filterShortDesc string = "Apply memory retention to a prompt"

var filterFlagKeys = []string{config.FlagRetention}

func NewFilterCmd() *cobra.Command {
	cmder := &filterCommander{}

	cmd := &cobra.Command{
		Use:   "filter",
		Short: filterShortDesc,
		Long:  filterLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = commoncmder.LoadConfig(cmd, filterFlagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.file, "file", "-", `Prompt JSON to filter ("-" reads stdin)`)
	config.AddIntFlag(cmd, config.Flags, config.FlagRetention, &cmder.k)
	cmd.Flags().IntVar(&cmder.systemK, "system-k", 0, "System messages to keep (default: memory.system_retention)")

	return cmd
}

func (c *filterCommander) run(cmd *cobra.Command) error {
	var (
		data []byte
		err  error
	)
	if c.file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(c.file)
	}
	if err != nil {
		return fmt.Errorf("reading prompt: %w", err)
	}

	prompt, err := decodePrompt(data)
	if err != nil {
		return err
	}

	budget := retention.Budget{
		Blocks:         c.cfg.Memory.Retention,
		SystemMessages: c.cfg.Memory.SystemRetention,
	}
	if cmd.Flags().Changed("system-k") {
		budget.SystemMessages = c.systemK
	}

	filtered := retention.New(commoncmder.NewLogger(cmd)).Apply(prompt, budget)
	if filtered.Messages == nil {
		filtered.Messages = []retention.Message{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(filtered)
}

// decodePrompt accepts a Prompt object or a bare message array.
func decodePrompt(data []byte) (retention.Prompt, error) {
	var prompt retention.Prompt
	if err := json.Unmarshal(data, &prompt); err == nil {
		return prompt, nil
	}

	var msgs []retention.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return retention.Prompt{}, fmt.Errorf("decoding prompt: expected an object or a message array: %w", err)
	}
	return retention.Prompt{Messages: msgs}, nil
}
