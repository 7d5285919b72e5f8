package core

import (
	"encoding/json"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"system", RoleSystem},
		{"assistant", RoleAssistant},
		{"tool", RoleTool},
		{"user", RoleUser},
		{"something-else", RoleUser},
		{"", RoleUser},
	}

	for _, tt := range tests {
		if got := ParseRole(tt.input); got != tt.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestToWirePlainMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "hello")

	data, err := json.Marshal(msg.ToWire())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["role"] != "user" {
		t.Errorf("role = %v", decoded["role"])
	}
	if decoded["content"] != "hello" {
		t.Errorf("content = %v", decoded["content"])
	}
}

func TestToWireToolCallContentIsNull(t *testing.T) {
	msg := NewMessage(RoleAssistant, "")
	msg.ToolCalls = []ToolCall{{ID: "call_1", Name: "read_file", Arguments: `{"path":"a.go"}`}}

	data, err := json.Marshal(msg.ToWire())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Content   *string `json:"content"`
		ToolCalls []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Content != nil {
		t.Errorf("content = %q, want JSON null", *decoded.Content)
	}
	if len(decoded.ToolCalls) != 1 {
		t.Fatalf("tool_calls count = %d", len(decoded.ToolCalls))
	}
	if decoded.ToolCalls[0].Type != "function" {
		t.Errorf("tool call type = %q", decoded.ToolCalls[0].Type)
	}
	if decoded.ToolCalls[0].Function.Name != "read_file" {
		t.Errorf("tool call name = %q", decoded.ToolCalls[0].Function.Name)
	}
}

func TestToWireAssistantWithTextKeepsContent(t *testing.T) {
	msg := NewMessage(RoleAssistant, "thinking done")
	msg.ToolCalls = []ToolCall{{ID: "call_1", Name: "read_file", Arguments: "{}"}}

	data, _ := json.Marshal(msg.ToWire())

	var decoded struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Content == nil || *decoded.Content != "thinking done" {
		t.Error("assistant text content was replaced by null")
	}
}

func TestToWireToolResult(t *testing.T) {
	msg := NewMessage(RoleTool, `{"result":"ok"}`)
	msg.ToolCallID = "call_1"

	wire := msg.ToWire()
	if wire.ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q", wire.ToolCallID)
	}
}
