package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/mnemosyne/pkg/retention"
)

var (
	filterContextToolName    = "filter_context"
	filterContextDescription = "Apply memory retention to a prompt: keep only the most recent <Mnemosyne> memory blocks and trim old system messages."
)

// ContextMessage is a plain text chat message.
type ContextMessage struct {
	Role    string `json:"role" jsonschema:"user, assistant or system"`
	Name    string `json:"name,omitempty" jsonschema:"speaker name, if any"`
	Content string `json:"content" jsonschema:"message text"`
}

// FilterContextInput represents the input arguments for filter_context.
type FilterContextInput struct {
	SystemPrompt string           `json:"system_prompt,omitempty" jsonschema:"the system prompt"`
	Messages     []ContextMessage `json:"messages" jsonschema:"the message history, oldest first"`
	K            *int             `json:"k,omitempty" jsonschema:"memory blocks to keep (default: configured retention; negative keeps all)"`
	SystemK      *int             `json:"system_k,omitempty" jsonschema:"system messages to keep (default: configured system retention)"`
}

// FilterContextOutput represents the output of filter_context.
type FilterContextOutput struct {
	SystemPrompt string           `json:"system_prompt"`
	Messages     []ContextMessage `json:"messages"`
}

func (s *Server) handleFilterContext(_ context.Context, _ *mcp.CallToolRequest, input FilterContextInput) (*mcp.CallToolResult, FilterContextOutput, error) {
	budget := s.config.Budget
	if input.K != nil {
		budget.Blocks = *input.K
	}
	if input.SystemK != nil {
		budget.SystemMessages = *input.SystemK
	}

	p := s.retention.Apply(retention.Prompt{
		SystemPrompt: input.SystemPrompt,
		Messages:     toMessages(input.Messages),
	}, budget)

	out := FilterContextOutput{
		SystemPrompt: p.SystemPrompt,
		Messages:     make([]ContextMessage, len(p.Messages)),
	}
	for i, m := range p.Messages {
		out.Messages[i] = ContextMessage{Role: m.Role, Name: m.Name, Content: m.Content.Text}
	}
	return nil, out, nil
}
