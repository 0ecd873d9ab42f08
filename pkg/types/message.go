package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies who authored a transcript message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"      // RoleUser marks a message written by the human operator.
	RoleAssistant MessageRole = "assistant" // RoleAssistant marks a message produced by an agent.
	RoleSystem    MessageRole = "system"    // RoleSystem marks instructions or synthetic controller turns.
)

// Valid reports whether r is one of the known roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one entry of a conversation transcript. Parts are ordered and
// the order is significant.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Parts     []Part      `json:"parts"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewMessage creates a message with a fresh ID and the given parts.
func NewMessage(role MessageRole, parts ...Part) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage creates a user message holding a single text part.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, NewTextPart(text))
}

// NewAssistantMessage creates an assistant message holding a single text part.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, NewTextPart(text))
}

// NewSystemMessage creates a system message holding a single text part.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, NewTextPart(text))
}

// Validate checks that the message can be stored or sent to a model.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message %s has no parts", m.ID)
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("message %s part %d: %w", m.ID, i, err)
		}
	}
	return nil
}

// Complete reports whether every tool-call part in the message has reached
// a terminal state.
func (m Message) Complete() bool {
	for _, p := range m.Parts {
		if p.Kind == PartToolCall && !p.ToolCall.State.Terminal() {
			return false
		}
	}
	return true
}

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind != PartText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			out.Parts[i] = p.Clone()
		}
	}
	return out
}

// CloneMessages deep-copies a message slice. A nil input yields an empty slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// UnmarshalJSON decodes a message and validates its role.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Role.Valid() {
		return fmt.Errorf("invalid message role %q", raw.Role)
	}
	*m = Message(raw)
	return nil
}
