package core

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ParseRole maps a wire role string to a Role, defaulting to user.
func ParseRole(s string) Role {
	switch s {
	case "system":
		return RoleSystem
	case "assistant":
		return RoleAssistant
	case "tool":
		return RoleTool
	}
	return RoleUser
}

// ToolCall is a complete model-issued tool invocation after streaming
// assembly. Arguments holds the fully concatenated JSON text.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single transcript entry.
//
// ToolCallID is set only on tool messages and correlates the result with
// the assistant tool call that produced it. ToolCalls is set only on
// assistant messages that invoked tools.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// wireToolCall is the OpenAI-style function call encoding.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// WireMessage is the chat-completion message schema shared by the
// OpenAI-compatible backends.
type WireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

// ToWire converts a message to its wire form. An assistant message that
// carries tool calls and no text serializes content as JSON null rather
// than an empty string; some backends reject "" there.
func (m Message) ToWire() WireMessage {
	w := WireMessage{
		Role:       string(m.Role),
		ToolCallID: m.ToolCallID,
	}

	if m.Role == RoleAssistant && len(m.ToolCalls) > 0 && m.Content == "" {
		w.Content = json.RawMessage("null")
	} else {
		content, _ := json.Marshal(m.Content)
		w.Content = content
	}

	for _, tc := range m.ToolCalls {
		wtc := wireToolCall{ID: tc.ID, Type: "function"}
		wtc.Function.Name = tc.Name
		wtc.Function.Arguments = tc.Arguments
		w.ToolCalls = append(w.ToolCalls, wtc)
	}

	return w
}
