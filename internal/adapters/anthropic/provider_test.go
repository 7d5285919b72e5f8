package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yukin371/aide/internal/core"
)

func collect(t *testing.T, events <-chan core.StreamEvent) []core.StreamEvent {
	t.Helper()
	var collected []core.StreamEvent
	for event := range events {
		collected = append(collected, event)
	}
	return collected
}

func streamServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
}

func newTestProvider(url string) *Provider {
	p := NewProvider("test-key", "test-model")
	p.SetBaseURL(url)
	return p
}

func TestStreamTextDeltas(t *testing.T) {
	server := streamServer(t, []string{
		"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"model\":\"test-model\"}}\n\n",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
	})
	defer server.Close()

	events, err := newTestProvider(server.URL).ChatStream(context.Background(), core.ChatRequest{
		Messages: []core.Message{core.NewMessage(core.RoleUser, "hi")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	var content, model string
	var dones int
	for _, event := range collect(t, events) {
		switch event.Type {
		case core.EventContent:
			content += event.Content
		case core.EventModelInfo:
			model = event.Content
		case core.EventDone:
			dones++
		case core.EventError:
			t.Fatalf("unexpected error event: %s", event.Content)
		}
	}

	if content != "Hello" {
		t.Errorf("content = %q, want Hello", content)
	}
	if model != "test-model" {
		t.Errorf("model = %q", model)
	}
	if dones != 1 {
		t.Errorf("done events = %d, want exactly 1", dones)
	}
}

func TestStreamToolUseAssembly(t *testing.T) {
	server := streamServer(t, []string{
		"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"read_file\"}}\n",
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"path\\\":\"}}\n",
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"\\\"a.go\\\"}\"}}\n",
		"data: {\"type\":\"message_stop\"}\n",
	})
	defer server.Close()

	events, err := newTestProvider(server.URL).ChatStream(context.Background(), core.ChatRequest{
		Messages: []core.Message{core.NewMessage(core.RoleUser, "open a.go")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	var calls []core.ToolCall
	var toolEvents int
	for _, event := range collect(t, events) {
		if event.Type == core.EventToolCalls {
			toolEvents++
			calls = event.ToolCalls
		}
	}

	if toolEvents != 1 {
		t.Fatalf("tool call events = %d, want exactly 1", toolEvents)
	}
	if len(calls) != 1 {
		t.Fatalf("assembled calls = %d, want 1", len(calls))
	}
	if calls[0].ID != "toolu_1" || calls[0].Name != "read_file" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"path":"a.go"}` {
		t.Errorf("arguments = %q", calls[0].Arguments)
	}
}

func TestStreamEOFWithoutStopIsNormalEnd(t *testing.T) {
	server := streamServer(t, []string{
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"cut off\"}}\n",
	})
	defer server.Close()

	events, err := newTestProvider(server.URL).ChatStream(context.Background(), core.ChatRequest{
		Messages: []core.Message{core.NewMessage(core.RoleUser, "hi")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	collected := collect(t, events)
	if collected[len(collected)-1].Type != core.EventDone {
		t.Error("stream did not end with EventDone")
	}
}

func TestStreamErrorFrame(t *testing.T) {
	server := streamServer(t, []string{
		"data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"overloaded\"}}\n",
	})
	defer server.Close()

	events, err := newTestProvider(server.URL).ChatStream(context.Background(), core.ChatRequest{
		Messages: []core.Message{core.NewMessage(core.RoleUser, "hi")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	var sawError bool
	for _, event := range collect(t, events) {
		if event.Type == core.EventError {
			sawError = true
			if event.Content != "overloaded" {
				t.Errorf("error content = %q", event.Content)
			}
		}
		if event.Type == core.EventDone {
			t.Error("EventDone after a fatal error frame")
		}
	}
	if !sawError {
		t.Error("error frame did not produce EventError")
	}
}

// System messages are hoisted to the top-level field and tool results
// become user tool_result blocks.
func TestRequestShape(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("data: {\"type\":\"message_stop\"}\n"))
	}))
	defer server.Close()

	assistant := core.NewMessage(core.RoleAssistant, "")
	assistant.ToolCalls = []core.ToolCall{{ID: "toolu_1", Name: "read_file", Arguments: `{"path":"a.go"}`}}
	toolResult := core.NewMessage(core.RoleTool, `{"content":"package main"}`)
	toolResult.ToolCallID = "toolu_1"

	events, err := newTestProvider(server.URL).ChatStream(context.Background(), core.ChatRequest{
		Messages: []core.Message{
			core.NewMessage(core.RoleSystem, "be terse"),
			core.NewMessage(core.RoleUser, "open a.go"),
			assistant,
			toolResult,
		},
		Stream: true,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	collect(t, events)

	if gotHeaders.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotHeaders.Get("anthropic-version"))
	}

	if gotBody["system"] != "be terse" {
		t.Errorf("system = %v", gotBody["system"])
	}

	messages := gotBody["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3 (system hoisted out)", len(messages))
	}

	// Assistant tool_use block.
	asst := messages[1].(map[string]any)
	if asst["role"] != "assistant" {
		t.Errorf("messages[1].role = %v", asst["role"])
	}
	blocks := asst["content"].([]any)
	block := blocks[0].(map[string]any)
	if block["type"] != "tool_use" || block["id"] != "toolu_1" {
		t.Errorf("tool_use block = %v", block)
	}

	// Tool result travels as a user message.
	result := messages[2].(map[string]any)
	if result["role"] != "user" {
		t.Errorf("messages[2].role = %v", result["role"])
	}
	resultBlock := result["content"].([]any)[0].(map[string]any)
	if resultBlock["type"] != "tool_result" || resultBlock["tool_use_id"] != "toolu_1" {
		t.Errorf("tool_result block = %v", resultBlock)
	}

	if _, hasMax := gotBody["max_tokens"]; !hasMax {
		t.Error("max_tokens missing from request")
	}
}

func TestNonStreamingResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"test-model","content":[{"type":"text","text":"full answer"}]}`))
	}))
	defer server.Close()

	events, err := newTestProvider(server.URL).ChatStream(context.Background(), core.ChatRequest{
		Messages: []core.Message{core.NewMessage(core.RoleUser, "hi")},
		Stream:   false,
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	var content string
	for _, event := range collect(t, events) {
		if event.Type == core.EventContent {
			content += event.Content
		}
	}
	if content != "full answer" {
		t.Errorf("content = %q", content)
	}
}
