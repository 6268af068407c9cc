// Package openai summarizes conversation history with the chat completions
// API through go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/mnemosyne/pkg/summary"
)

// DefaultModel is used when no model is configured.
const DefaultModel = goopenai.GPT4oMini

// Config configures the summarizer.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// Prompt overrides summary.SystemPrompt.
	Prompt string

	// MaxTokens bounds the reply. Zero leaves it to the server.
	MaxTokens int
}

// Summarizer calls a chat completion once per summary.
type Summarizer struct {
	client    *goopenai.Client
	model     string
	prompt    string
	maxTokens int
}

// NewSummarizer returns an OpenAI summarizer.
func NewSummarizer(c Config) (*Summarizer, error) {
	if c.APIKey == "" && c.BaseURL == "" {
		return nil, errors.New("openai api key is required")
	}

	cfg := goopenai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}

	s := &Summarizer{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     c.Model,
		prompt:    c.Prompt,
		maxTokens: c.MaxTokens,
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.prompt == "" {
		s.prompt = summary.SystemPrompt
	}
	return s, nil
}

// Summarize returns the first choice of a chat completion.
func (s *Summarizer) Summarize(ctx context.Context, history string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: s.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: s.prompt},
			{Role: goopenai.ChatMessageRoleUser, Content: history},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op.
func (s *Summarizer) Close() error {
	return nil
}

var _ summary.Summarizer = (*Summarizer)(nil)
