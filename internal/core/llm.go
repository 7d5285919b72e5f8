package core

import "context"

// EventType represents the type of stream event.
type EventType int

const (
	EventContent   EventType = iota // ordinary text content delta
	EventReasoning                  // chain-of-thought delta on a secondary channel
	EventToolCalls                  // assembled tool calls, emitted once at stream completion
	EventModelInfo                  // model identity reported by the backend, de-duplicated
	EventError                      // error occurred
	EventDone                       // stream completed
)

// StreamEvent is a single event in the LLM response stream. Content
// carries the text for EventContent, EventReasoning, EventModelInfo and
// EventError; ToolCalls is set for EventToolCalls only.
type StreamEvent struct {
	Type      EventType
	Content   string
	ToolCalls []ToolCall
}

// ToolParam describes one parameter of an advertised tool.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolDescriptor describes a tool as advertised to the backend.
// Immutable after registry initialization.
type ToolDescriptor struct {
	Name        string
	Description string
	Params      []ToolParam
}

// ChatRequest is a chat-completion request. When Stream is false the
// provider performs a single synchronous parse and delivers the result
// over the same event channel.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDescriptor
	MaxTokens   int
	Temperature float32
	Stream      bool
}

// Provider is the streaming protocol client contract, one implementation
// per backend wire format. Selection happens once at configuration time.
//
// ChatStream issues the request and returns a channel of events. Events
// are delivered as they become available; the channel is closed after
// EventDone or EventError. A slow consumer delays frames, it never drops
// them. Providers do not retry; retry policy belongs to the caller.
type Provider interface {
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)

	// SetModel changes the active model.
	SetModel(model string)

	// GetModel returns the current model name.
	GetModel() string
}
