// Package anthropic implements the Provider contract for the Anthropic
// Messages API wire format. The system prompt travels as a top-level
// field rather than an inline message, and streaming frames are typed by
// a "type" field instead of the data/[DONE] convention.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yukin371/aide/internal/core"
	"github.com/yukin371/aide/internal/wire"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider implements core.Provider for the Anthropic-compatible family.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewProvider creates a provider for the given key and model.
func NewProvider(apiKey, model string) *Provider {
	return &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetBaseURL overrides the endpoint, for proxies or compatible servers.
func (p *Provider) SetBaseURL(url string) {
	p.baseURL = strings.TrimSuffix(url, "/")
}

// SetModel changes the active model.
func (p *Provider) SetModel(model string) {
	p.model = model
}

// GetModel returns the current model name.
func (p *Provider) GetModel() string {
	return p.model
}

// ChatStream issues a Messages API request and translates the response
// into stream events.
func (p *Provider) ChatStream(ctx context.Context, req core.ChatRequest) (<-chan core.StreamEvent, error) {
	requestBody, err := p.buildChatRequest(req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	url := p.baseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(requestBody))
	if err != nil {
		return nil, &core.TransportError{Op: "create request", Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &core.TransportError{Op: "send request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &core.TransportError{
			Op:  "messages",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	eventChan := make(chan core.StreamEvent, 16)

	if req.Stream {
		go p.processStream(ctx, resp.Body, eventChan)
	} else {
		go p.processResponse(resp.Body, eventChan)
	}

	return eventChan, nil
}

// contentBlock is the union of text, tool_use and tool_result blocks.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type messageParam struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type toolParam struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// buildChatRequest serializes the transcript into the Messages API
// schema. System messages are hoisted into the top-level system field;
// tool results become user-role tool_result blocks.
func (p *Provider) buildChatRequest(req core.ChatRequest) (string, error) {
	var systemParts []string
	messages := make([]messageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}
		case core.RoleTool:
			messages = append(messages, messageParam{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		default:
			blocks := make([]contentBlock, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, messageParam{Role: string(msg.Role), Content: blocks})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := struct {
		Model       string         `json:"model"`
		System      string         `json:"system,omitempty"`
		Messages    []messageParam `json:"messages"`
		MaxTokens   int            `json:"max_tokens"`
		Temperature float32        `json:"temperature,omitempty"`
		Stream      bool           `json:"stream,omitempty"`
		Tools       []toolParam    `json:"tools,omitempty"`
	}{
		Model:       p.model,
		System:      strings.Join(systemParts, "\n\n"),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}

	for _, desc := range req.Tools {
		body.Tools = append(body.Tools, descriptorToTool(desc))
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func descriptorToTool(desc core.ToolDescriptor) toolParam {
	properties := make(map[string]any, len(desc.Params))
	required := make([]string, 0)
	for _, param := range desc.Params {
		properties[param.Name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	return toolParam{
		Name:        desc.Name,
		Description: desc.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// streamFrame is one parsed SSE data frame, typed by its type field.
type streamFrame struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		Thinking    string `json:"thinking,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block"`
	Message struct {
		Model string `json:"model"`
	} `json:"message"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// processStream parses the typed SSE body with carry-over line buffering.
func (p *Provider) processStream(ctx context.Context, body io.ReadCloser, eventChan chan<- core.StreamEvent) {
	defer close(eventChan)
	defer body.Close()

	var (
		lines     wire.LineBuffer
		assembler = wire.NewToolCallAssembler()
		lastModel string
		buf       = make([]byte, 4096)
	)

	finish := func() {
		if assembler.Len() > 0 {
			eventChan <- core.StreamEvent{Type: core.EventToolCalls, ToolCalls: assembler.Assemble()}
		}
		eventChan <- core.StreamEvent{Type: core.EventDone}
	}

	for {
		select {
		case <-ctx.Done():
			eventChan <- core.StreamEvent{Type: core.EventError, Content: "request canceled"}
			return
		default:
		}

		n, err := body.Read(buf)
		for _, line := range lines.Feed(buf[:n]) {
			switch p.handleLine(line, eventChan, assembler, &lastModel) {
			case frameStop:
				finish()
				return
			case frameFatal:
				return
			}
		}

		if err != nil {
			if err != io.EOF {
				eventChan <- core.StreamEvent{Type: core.EventError, Content: fmt.Sprintf("read stream: %v", err)}
				return
			}
			if line, ok := lines.Flush(); ok {
				switch p.handleLine(line, eventChan, assembler, &lastModel) {
				case frameStop:
					finish()
					return
				case frameFatal:
					return
				}
			}
			// Stream closed without message_stop; treat as a normal end.
			finish()
			return
		}
	}
}

type frameResult int

const (
	frameContinue frameResult = iota
	frameStop
	frameFatal
)

func (p *Provider) handleLine(line string, eventChan chan<- core.StreamEvent, assembler *wire.ToolCallAssembler, lastModel *string) frameResult {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "event:") || strings.HasPrefix(line, ":") {
		return frameContinue
	}

	if !strings.HasPrefix(line, "data:") {
		if strings.Contains(strings.ToLower(line), "error") {
			eventChan <- core.StreamEvent{
				Type:    core.EventContent,
				Content: "\n**System Notification:** " + line + "\n",
			}
		}
		return frameContinue
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

	var frame streamFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return frameContinue
	}

	switch frame.Type {
	case "message_start":
		if frame.Message.Model != "" && frame.Message.Model != *lastModel {
			*lastModel = frame.Message.Model
			eventChan <- core.StreamEvent{Type: core.EventModelInfo, Content: frame.Message.Model}
		}

	case "content_block_start":
		if frame.ContentBlock.Type == "tool_use" {
			assembler.Add(frame.Index, frame.ContentBlock.ID, frame.ContentBlock.Name, "")
		}

	case "content_block_delta":
		switch frame.Delta.Type {
		case "text_delta":
			if frame.Delta.Text != "" {
				eventChan <- core.StreamEvent{Type: core.EventContent, Content: frame.Delta.Text}
			}
		case "thinking_delta":
			if frame.Delta.Thinking != "" {
				eventChan <- core.StreamEvent{Type: core.EventReasoning, Content: frame.Delta.Thinking}
			}
		case "input_json_delta":
			assembler.Add(frame.Index, "", "", frame.Delta.PartialJSON)
		}

	case "message_stop":
		return frameStop

	case "error":
		eventChan <- core.StreamEvent{Type: core.EventError, Content: frame.Error.Message}
		return frameFatal
	}

	return frameContinue
}

// processResponse handles the non-streaming mode.
func (p *Provider) processResponse(body io.ReadCloser, eventChan chan<- core.StreamEvent) {
	defer close(eventChan)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		eventChan <- core.StreamEvent{Type: core.EventError, Content: fmt.Sprintf("read response: %v", err)}
		return
	}

	var response struct {
		Model   string         `json:"model"`
		Content []contentBlock `json:"content"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		eventChan <- core.StreamEvent{Type: core.EventError, Content: fmt.Sprintf("parse response: %v", err)}
		return
	}
	if len(response.Content) == 0 {
		eventChan <- core.StreamEvent{Type: core.EventError, Content: "empty response"}
		return
	}

	if response.Model != "" {
		eventChan <- core.StreamEvent{Type: core.EventModelInfo, Content: response.Model}
	}

	var text strings.Builder
	var calls []core.ToolCall
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, core.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	if len(calls) > 0 {
		eventChan <- core.StreamEvent{Type: core.EventToolCalls, ToolCalls: calls}
	} else if text.Len() > 0 {
		eventChan <- core.StreamEvent{Type: core.EventContent, Content: text.String()}
	}

	eventChan <- core.StreamEvent{Type: core.EventDone}
}
