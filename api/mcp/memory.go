package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
)

var (
	listCollectionsToolName    = "list_collections"
	listCollectionsDescription = "List the collections in the memory store and report whether the configured memory collection exists."

	listMemoriesToolName    = "list_memories"
	listMemoriesDescription = "List the most recent stored memories, newest first. Optionally narrow to one chat session."

	forgetSessionToolName    = "forget_session"
	forgetSessionDescription = "Delete every stored memory of a chat session. Destructive: nothing is deleted unless confirm is true."

	summarizeToolName    = "summarize_session"
	summarizeDescription = "Summarize a conversation and store the summary as a long-term memory of the session."
)

// ListCollectionsInput takes no arguments.
type ListCollectionsInput struct{}

// ListMemoriesInput represents the input arguments for list_memories.
type ListMemoriesInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"collection to list (default: the configured memory collection)"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"only list memories of this session"`
	Limit      int    `json:"limit,omitempty" jsonschema:"number of memories to return (default: 10, max: 50)"`
}

// MemoryItem is one listed memory.
type MemoryItem struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id"`
	PersonalityID string `json:"personality_id,omitempty"`
	CreateTime    int64  `json:"create_time"`
	Preview       string `json:"preview"`
}

// ListMemoriesOutput represents the output of list_memories.
type ListMemoriesOutput struct {
	Collection string       `json:"collection"`
	Memories   []MemoryItem `json:"memories"`
	Count      int          `json:"count"`
	Truncated  bool         `json:"truncated,omitempty"`
}

// ForgetSessionInput represents the input arguments for forget_session.
type ForgetSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"the session whose memories are deleted"`
	Confirm   bool   `json:"confirm,omitempty" jsonschema:"must be true to delete"`
}

// ForgetSessionOutput represents the output of forget_session.
type ForgetSessionOutput struct {
	SessionID  string `json:"session_id"`
	Deleted    int64  `json:"deleted"`
	FlushError string `json:"flush_error,omitempty"`
}

// SummarizeInput represents the input arguments for summarize_session.
type SummarizeInput struct {
	SessionID     string           `json:"session_id" jsonschema:"the session the memory belongs to"`
	PersonalityID string           `json:"personality_id,omitempty" jsonschema:"the assistant personality, if any"`
	Messages      []ContextMessage `json:"messages" jsonschema:"the conversation, oldest first"`
}

// SummarizeOutput represents the output of summarize_session.
type SummarizeOutput struct {
	RecordID  string `json:"record_id"`
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

func (s *Server) handleListCollections(ctx context.Context, _ *mcp.CallToolRequest, _ ListCollectionsInput) (*mcp.CallToolResult, memory.CollectionsView, error) {
	view, err := s.config.Service.ListCollections(ctx)
	if err != nil {
		s.config.Logger.Error("MCP list_collections failed", "error", err)
		return nil, memory.CollectionsView{}, fmt.Errorf("listing collections: %w", err)
	}
	return nil, view, nil
}

func (s *Server) handleListMemories(ctx context.Context, _ *mcp.CallToolRequest, input ListMemoriesInput) (*mcp.CallToolResult, ListMemoriesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = memory.DefaultListLimit
	}

	s.config.Logger.Debug("MCP list_memories request",
		"collection", input.Collection,
		"session_id", input.SessionID,
		"limit", limit,
	)

	res, err := s.config.Service.ListLatest(ctx, input.Collection, input.SessionID, limit)
	if err != nil {
		return nil, ListMemoriesOutput{}, fmt.Errorf("listing memories: %w", err)
	}

	out := ListMemoriesOutput{
		Collection: res.Collection,
		Memories:   make([]MemoryItem, 0, len(res.Records)),
		Truncated:  res.Truncated,
	}
	for _, r := range res.Records {
		out.Memories = append(out.Memories, MemoryItem{
			ID:            r.ID,
			SessionID:     r.SessionID,
			PersonalityID: r.PersonalityID,
			CreateTime:    r.CreateTime,
			Preview:       memory.Preview(r.Content),
		})
	}
	out.Count = len(out.Memories)
	return nil, out, nil
}

func (s *Server) handleForgetSession(ctx context.Context, _ *mcp.CallToolRequest, input ForgetSessionInput) (*mcp.CallToolResult, ForgetSessionOutput, error) {
	res, err := s.config.Service.DeleteSession(ctx, input.SessionID, input.Confirm)
	if errors.Is(err, memory.ErrConfirmationRequired) {
		return nil, ForgetSessionOutput{}, fmt.Errorf("refusing to delete memories of %q without confirm=true", res.SessionID)
	}
	if err != nil {
		return nil, ForgetSessionOutput{}, fmt.Errorf("forgetting session: %w", err)
	}
	return nil, ForgetSessionOutput{
		SessionID:  res.SessionID,
		Deleted:    res.Deleted,
		FlushError: res.FlushError,
	}, nil
}

func (s *Server) handleSummarize(ctx context.Context, _ *mcp.CallToolRequest, input SummarizeInput) (*mcp.CallToolResult, SummarizeOutput, error) {
	res, err := s.config.Service.DebugSummary(ctx, input.SessionID, input.PersonalityID, toMessages(input.Messages))
	if err != nil {
		return nil, SummarizeOutput{}, fmt.Errorf("summarizing session: %w", err)
	}
	return nil, SummarizeOutput{
		RecordID:  res.RecordID,
		SessionID: res.SessionID,
		Summary:   res.Summary,
	}, nil
}

func toMessages(in []ContextMessage) []retention.Message {
	out := make([]retention.Message, len(in))
	for i, m := range in {
		out[i] = retention.NewTextMessage(m.Role, m.Content)
		out[i].Name = m.Name
	}
	return out
}
