package retention

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Message roles the engine distinguishes.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Kind identifies which variant a Content holds.
type Kind int

const (
	// KindText is plain string content.
	KindText Kind = iota

	// KindParts is structured multi-part content.
	KindParts

	// KindRaw is any other payload, kept verbatim.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindParts:
		return "parts"
	default:
		return "raw"
	}
}

// MediaURL is the {"url": ...} object used by image and audio parts.
type MediaURL struct {
	URL string `json:"url"`
}

// Part is one block of structured content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *MediaURL `json:"image_url,omitempty"`
	AudioURL *MediaURL `json:"audio_url,omitempty"`
}

// Content is a tagged union over plain text, structured parts and unknown
// payloads. Only Text content is ever rewritten by the engine.
type Content struct {
	Kind  Kind
	Text  string
	Parts []Part
	Raw   json.RawMessage

	// parts as decoded, re-emitted so part members Part does not model survive
	partsRaw json.RawMessage
}

// TextContent returns plain text content.
func TextContent(s string) Content {
	return Content{Kind: KindText, Text: s}
}

// PartsContent returns structured content.
func PartsContent(parts ...Part) Content {
	return Content{Kind: KindParts, Parts: parts}
}

// RawContent returns an opaque payload.
func RawContent(raw json.RawMessage) Content {
	return Content{Kind: KindRaw, Raw: raw}
}

// MarshalJSON encodes each variant back to its original JSON shape.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindText:
		return json.Marshal(c.Text)
	case KindParts:
		if c.partsRaw != nil {
			return c.partsRaw, nil
		}
		if c.Parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Parts)
	default:
		if len(c.Raw) == 0 {
			return []byte("null"), nil
		}
		return c.Raw, nil
	}
}

// UnmarshalJSON picks the variant from the JSON shape: strings become Text,
// arrays of objects become Parts, anything else (null included) is kept as
// Raw. Decoded Parts must not be edited in place; build new content with
// PartsContent instead.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty content")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case '[':
		var parts []Part
		if err := json.Unmarshal(trimmed, &parts); err == nil && allObjects(trimmed) {
			*c = PartsContent(parts...)
			c.partsRaw = append(json.RawMessage(nil), trimmed...)
			return nil
		}
	}

	*c = RawContent(append(json.RawMessage(nil), trimmed...))
	return nil
}

// allObjects reports whether a JSON array holds only objects.
func allObjects(data []byte) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return false
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return false
		}
	}
	return true
}

// Message is one chat message as seen by the retention engine. Members
// the engine does not interpret are kept in Extra and written back on
// encode, so a decoded message re-encodes to the same JSON object.
type Message struct {
	Role      string  `json:"role"`
	Name      string  `json:"name,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Content   Content `json:"content"`

	// Extra holds every other member verbatim, e.g. tool_calls.
	Extra map[string]json.RawMessage `json:"-"`

	tsKey     string
	tsRaw     json.RawMessage
	noContent bool
}

// timestampKeys are tried in order when decoding.
var timestampKeys = []string{"timestamp", "created_at", "time"}

// NewTextMessage returns a message with plain text content.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: TextContent(text)}
}

// UnmarshalJSON accepts the timestamp under "timestamp", "created_at" or
// "time", as a string or a number. Missing content decodes as empty text;
// null content is kept raw.
func (m *Message) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	if members == nil {
		return errors.New("message must be a JSON object")
	}

	*m = Message{}
	if raw, ok := members["role"]; ok {
		if err := json.Unmarshal(raw, &m.Role); err != nil {
			return fmt.Errorf("message role: %w", err)
		}
		delete(members, "role")
	}
	if raw, ok := members["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			m.Name = name
			delete(members, "name")
		}
	}
	for _, key := range timestampKeys {
		if s := rawScalar(members[key]); s != "" {
			m.Timestamp = s
			m.tsKey = key
			m.tsRaw = members[key]
			delete(members, key)
			break
		}
	}
	if raw, ok := members["content"]; ok {
		if err := m.Content.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("message content: %w", err)
		}
		delete(members, "content")
	} else {
		m.noContent = true
	}

	if len(members) > 0 {
		m.Extra = members
	}
	return nil
}

// MarshalJSON writes the message back, restoring the timestamp under the
// key it was read from and every member held in Extra.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+4)
	maps.Copy(out, m.Extra)

	role, err := json.Marshal(m.Role)
	if err != nil {
		return nil, err
	}
	out["role"] = role

	if m.Name != "" {
		name, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		out["name"] = name
	}

	if m.Timestamp != "" {
		key := cmp.Or(m.tsKey, "timestamp")
		if m.tsRaw != nil && rawScalar(m.tsRaw) == m.Timestamp {
			out[key] = m.tsRaw
		} else {
			ts, err := json.Marshal(m.Timestamp)
			if err != nil {
				return nil, err
			}
			out[key] = ts
		}
	}

	if !m.noContent || m.Content.Kind != KindText || m.Content.Text != "" {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		out["content"] = content
	}
	return json.Marshal(out)
}

// rawScalar renders a JSON string or number as text; anything else is "".
func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
