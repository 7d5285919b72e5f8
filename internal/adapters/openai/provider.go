// Package openai implements the Provider contract for the OpenAI
// chat-completions wire format, which most compatible backends (DeepSeek,
// Zhipu, LM Studio, vLLM, Ollama's /v1 endpoint) speak as well.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

// Provider implements core.Provider for the OpenAI-compatible family.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewProvider creates a provider for the given key and model. An empty
// key switches the default endpoint to a local Ollama-compatible one.
func NewProvider(apiKey, model string) *Provider {
	baseURL := defaultBaseURL
	if apiKey == "" {
		baseURL = "http://localhost:11434/v1"
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetBaseURL overrides the endpoint, for proxies or local deployments.
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

// ChatStream issues a chat-completion request and translates the
// response into stream events.
func (p *Provider) ChatStream(ctx context.Context, req core.ChatRequest) (<-chan core.StreamEvent, error) {
	requestBody, err := p.buildChatRequest(req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(requestBody))
	if err != nil {
		return nil, &core.TransportError{Op: "create request", Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &core.TransportError{Op: "send request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &core.TransportError{
			Op:  "chat completions",
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

// chatMessage mirrors core.WireMessage for this wire format.
type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

// buildChatRequest serializes the transcript and tool descriptors into
// the chat-completions request body.
func (p *Provider) buildChatRequest(req core.ChatRequest) (string, error) {
	messages := make([]core.WireMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = msg.ToWire()
	}

	body := struct {
		Model       string             `json:"model"`
		Messages    []core.WireMessage `json:"messages"`
		MaxTokens   int                `json:"max_tokens,omitempty"`
		Temperature float32            `json:"temperature,omitempty"`
		Stream      bool               `json:"stream"`
		Tools       []chatTool         `json:"tools,omitempty"`
	}{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
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

// descriptorToTool converts a descriptor to the function-calling schema:
// {type: function, function: {name, description, parameters}}.
func descriptorToTool(desc core.ToolDescriptor) chatTool {
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

	tool := chatTool{Type: "function"}
	tool.Function.Name = desc.Name
	tool.Function.Description = desc.Description
	tool.Function.Parameters = map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	return tool
}

// streamChunk is one parsed data frame.
type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content          string `json:"content,omitempty"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
			ToolCalls        []struct {
				Index     int    `json:"index"`
				ID        string `json:"id,omitempty"`
				Name      string `json:"name,omitempty"`
				Arguments string `json:"arguments,omitempty"`
				// Some backends nest name/arguments under function.
				Function *struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function,omitempty"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// processStream parses the SSE body. Chunks arrive at arbitrary byte
// boundaries, so lines are reassembled through a carry-over buffer and
// only complete lines are parsed.
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
			if done := p.handleLine(line, eventChan, assembler, &lastModel); done {
				finish()
				return
			}
		}

		if err != nil {
			if err != io.EOF {
				eventChan <- core.StreamEvent{Type: core.EventError, Content: fmt.Sprintf("read stream: %v", err)}
				return
			}
			// Transport close without a [DONE] sentinel is a normal end.
			if line, ok := lines.Flush(); ok {
				if done := p.handleLine(line, eventChan, assembler, &lastModel); done {
					finish()
					return
				}
			}
			finish()
			return
		}
	}
}

// handleLine parses one complete line and reports whether the stream
// signaled completion.
func (p *Provider) handleLine(line string, eventChan chan<- core.StreamEvent, assembler *wire.ToolCallAssembler, lastModel *string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "data:") {
		// Non-SSE bodies sometimes carry plain-text error payloads;
		// degrade them to a visible notice instead of aborting.
		if strings.Contains(strings.ToLower(line), "error") {
			eventChan <- core.StreamEvent{
				Type:    core.EventContent,
				Content: "\n**System Notification:** " + line + "\n",
			}
		}
		return false
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Malformed frames are not fatal; skip, but surface apparent
		// error bodies as a notice.
		if strings.Contains(strings.ToLower(data), "error") {
			eventChan <- core.StreamEvent{
				Type:    core.EventContent,
				Content: "\n**System Notification:** " + data + "\n",
			}
		}
		return false
	}

	if chunk.Model != "" && chunk.Model != *lastModel {
		*lastModel = chunk.Model
		eventChan <- core.StreamEvent{Type: core.EventModelInfo, Content: chunk.Model}
	}

	if len(chunk.Choices) == 0 {
		return false
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		eventChan <- core.StreamEvent{Type: core.EventContent, Content: choice.Delta.Content}
	}
	if choice.Delta.ReasoningContent != "" {
		eventChan <- core.StreamEvent{Type: core.EventReasoning, Content: choice.Delta.ReasoningContent}
	}

	for _, tc := range choice.Delta.ToolCalls {
		name := tc.Name
		arguments := tc.Arguments
		if tc.Function != nil {
			name = tc.Function.Name
			arguments = tc.Function.Arguments
		}
		assembler.Add(tc.Index, tc.ID, name, arguments)
	}

	return choice.FinishReason != nil
}

// processResponse handles the non-streaming mode: one synchronous parse
// of the full body.
func (p *Provider) processResponse(body io.ReadCloser, eventChan chan<- core.StreamEvent) {
	defer close(eventChan)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		eventChan <- core.StreamEvent{Type: core.EventError, Content: fmt.Sprintf("read response: %v", err)}
		return
	}

	var response struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(data, &response); err != nil {
		eventChan <- core.StreamEvent{Type: core.EventError, Content: fmt.Sprintf("parse response: %v", err)}
		return
	}
	if len(response.Choices) == 0 {
		eventChan <- core.StreamEvent{Type: core.EventError, Content: "empty response"}
		return
	}

	if response.Model != "" {
		eventChan <- core.StreamEvent{Type: core.EventModelInfo, Content: response.Model}
	}

	message := response.Choices[0].Message
	if len(message.ToolCalls) > 0 {
		calls := make([]core.ToolCall, len(message.ToolCalls))
		for i, tc := range message.ToolCalls {
			calls[i] = core.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		}
		eventChan <- core.StreamEvent{Type: core.EventToolCalls, ToolCalls: calls}
	} else if message.Content != "" {
		eventChan <- core.StreamEvent{Type: core.EventContent, Content: message.Content}
	}

	eventChan <- core.StreamEvent{Type: core.EventDone}
}
