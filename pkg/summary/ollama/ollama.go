// Package ollama summarizes conversation history with Ollama's /api/chat.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/mnemosyne/pkg/summary"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

// Config configures the summarizer.
type Config struct {
	BaseURL string
	Model   string

	// Prompt overrides summary.SystemPrompt.
	Prompt string
}

// Summarizer calls a chat model once per summary.
type Summarizer struct {
	baseURL string
	model   string
	prompt  string
	client  *http.Client
}

// NewSummarizer returns an Ollama summarizer.
func NewSummarizer(c Config) *Summarizer {
	s := &Summarizer{
		baseURL: strings.TrimRight(c.BaseURL, "/"),
		model:   c.Model,
		prompt:  c.Prompt,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.prompt == "" {
		s.prompt = summary.SystemPrompt
	}
	return s
}

// Summarize returns the model's reply to the summary prompt.
func (s *Summarizer) Summarize(ctx context.Context, history string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: s.prompt},
			{Role: "user", Content: history},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send ollama request: %w", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Message.Content, nil
}

// Close releases idle connections.
func (s *Summarizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ summary.Summarizer = (*Summarizer)(nil)
