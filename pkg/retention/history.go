package retention

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/mnemosyne/pkg/utils"
)

// MaxHistoryTextRunes bounds each rendered text fragment.
const MaxHistoryTextRunes = 2000

// TruncatedSuffix marks a cut fragment.
const TruncatedSuffix = "...(truncated)"

// DefaultAssistantName labels assistant messages.
const DefaultAssistantName = "Assistant"

// HistoryOptions configures FormatHistory.
type HistoryOptions struct {
	AssistantName string
}

// FormatHistory renders the last length non-system messages that have
// content as "[ts] Role: content" lines, oldest first. It is the input to
// summarization.
func FormatHistory(msgs []Message, length int, opts HistoryOptions) string {
	if length <= 0 || len(msgs) == 0 {
		return ""
	}

	assistant := opts.AssistantName
	if assistant == "" {
		assistant = DefaultAssistantName
	}

	lines := make([]string, 0, min(length, len(msgs)))
	for i := len(msgs) - 1; i >= 0 && len(lines) < length; i-- {
		m := msgs[i]
		role := strings.ToLower(m.Role)
		if role == RoleSystem {
			continue
		}

		text := renderContent(m.Content)
		if text == "" {
			continue
		}

		var b strings.Builder
		if m.Timestamp != "" {
			b.WriteString("[" + m.Timestamp + "] ")
		}
		b.WriteString(roleLabel(role, m.Name, assistant))
		b.WriteString(": ")
		b.WriteString(text)
		lines = append(lines, b.String())
	}

	// collected newest first
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func roleLabel(role, name, assistant string) string {
	switch role {
	case "user", "human":
		if name != "" {
			return name
		}
		return "User"
	case "assistant", "model", "ai":
		return assistant
	case "":
		return "Unknown"
	default:
		r, size := utf8.DecodeRuneInString(role)
		return string(unicode.ToUpper(r)) + role[size:]
	}
}

func truncate(s string) string {
	return utils.TruncateWith(s, MaxHistoryTextRunes, TruncatedSuffix)
}

func renderContent(c Content) string {
	switch c.Kind {
	case KindText:
		if strings.HasPrefix(c.Text, "base64://") || strings.HasPrefix(c.Text, "data:image") {
			return "[image]"
		}
		return truncate(c.Text)
	case KindParts:
		return renderParts(c.Parts)
	default:
		return renderRaw(c.Raw)
	}
}

func renderParts(parts []Part) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Type == "text":
			if strings.TrimSpace(p.Text) != "" {
				out = append(out, truncate(p.Text))
			}
		case p.Type == "image_url" || p.ImageURL != nil:
			out = append(out, "[image]")
		case p.Type == "audio_url" || p.AudioURL != nil:
			out = append(out, "[audio]")
		case p.Type == "think":
		case p.Type != "":
			out = append(out, "["+p.Type+"]")
		}
	}
	return strings.Join(out, " ")
}

// renderRaw handles single-object payloads; anything else renders empty.
func renderRaw(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if _, ok := obj["image_url"]; ok {
		return "[image]"
	}
	if _, ok := obj["audio_url"]; ok {
		return "[audio]"
	}
	var text string
	if err := json.Unmarshal(obj["text"], &text); err == nil {
		return truncate(text)
	}
	return ""
}
