// Package retention decides which previously injected memory blocks survive
// into the next prompt.
//
// A memory block is a <Mnemosyne>...</Mnemosyne> span. Every policy takes a
// retention budget k: k < 0 keeps everything, k == 0 erases every block and
// k > 0 keeps the blocks whose text appears among the last k matches.
package retention

import (
	"log/slog"
	"regexp"
)

// Block delimiters.
const (
	OpenTag  = "<Mnemosyne>"
	CloseTag = "</Mnemosyne>"
)

// blockPattern matches blocks non-greedily across lines. Unterminated tags
// never match.
var blockPattern = regexp.MustCompile(`(?s)<Mnemosyne>.*?</Mnemosyne>`)

// WrapBlock returns text enclosed in block delimiters.
func WrapBlock(text string) string {
	return OpenTag + text + CloseTag
}

// Engine applies retention policies. It is stateless apart from its logger
// and safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

// New returns an Engine.
func New(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// keepSet returns the distinct texts among the last k blocks.
func keepSet(blocks []string, k int) map[string]struct{} {
	keep := make(map[string]struct{}, k)
	start := max(len(blocks)-k, 0)
	for _, b := range blocks[start:] {
		keep[b] = struct{}{}
	}
	return keep
}

// eraseExcept removes every block of text not in keep. A nil keep erases all.
func eraseExcept(text string, keep map[string]struct{}) string {
	if !blockPattern.MatchString(text) {
		return text
	}
	return blockPattern.ReplaceAllStringFunc(text, func(block string) string {
		if _, ok := keep[block]; ok {
			return block
		}
		return ""
	})
}

// FilterUserBlocks applies the retention budget to blocks in user messages.
// Only Text content is scanned; Parts and Raw content pass through and Raw
// user content is logged. Non-user messages are never touched. The input
// slice is not modified.
func (e *Engine) FilterUserBlocks(msgs []Message, k int) []Message {
	if k < 0 {
		return msgs
	}

	var keep map[string]struct{}
	if k > 0 {
		var blocks []string
		for _, m := range msgs {
			if m.Role == RoleUser && m.Content.Kind == KindText {
				blocks = append(blocks, blockPattern.FindAllString(m.Content.Text, -1)...)
			}
		}
		keep = keepSet(blocks, k)
	}

	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Role != RoleUser {
			continue
		}

		switch m.Content.Kind {
		case KindText:
			out[i].Content = TextContent(eraseExcept(m.Content.Text, keep))
		case KindParts:
		case KindRaw:
			e.logger.Warn("unexpected user content left unfiltered", "index", i, "bytes", len(m.Content.Raw))
		}
	}
	return out
}

// FilterSystemText applies the retention budget to blocks in a system prompt.
func (e *Engine) FilterSystemText(text string, k int) string {
	switch {
	case k < 0:
		return text
	case k == 0:
		return eraseExcept(text, nil)
	default:
		return eraseExcept(text, keepSet(blockPattern.FindAllString(text, -1), k))
	}
}

// TrimSystemMessages keeps at most k system messages, dropping the oldest.
// Survivors and all other messages keep their relative order.
func (e *Engine) TrimSystemMessages(msgs []Message, k int) []Message {
	if k < 0 {
		return msgs
	}

	var systemIdx []int
	for i, m := range msgs {
		if m.Role == RoleSystem {
			systemIdx = append(systemIdx, i)
		}
	}
	if len(systemIdx) <= k {
		return msgs
	}

	drop := make(map[int]struct{}, len(systemIdx)-k)
	for _, i := range systemIdx[:len(systemIdx)-k] {
		drop[i] = struct{}{}
	}

	out := make([]Message, 0, len(msgs)-len(drop))
	for i, m := range msgs {
		if _, ok := drop[i]; !ok {
			out = append(out, m)
		}
	}

	e.logger.Debug("trimmed system messages", "removed", len(drop), "kept", k)
	return out
}

// Prompt is an outgoing prompt: the system prompt plus the message history.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// Budget holds the retention budgets applied by Apply.
type Budget struct {
	// Blocks bounds memory blocks kept in user messages and the system prompt.
	Blocks int

	// SystemMessages bounds system-role messages kept in the history.
	SystemMessages int
}

// Apply runs every policy over p.
func (e *Engine) Apply(p Prompt, b Budget) Prompt {
	msgs := e.FilterUserBlocks(p.Messages, b.Blocks)
	msgs = e.TrimSystemMessages(msgs, b.SystemMessages)
	return Prompt{
		SystemPrompt: e.FilterSystemText(p.SystemPrompt, b.Blocks),
		Messages:     msgs,
	}
}
