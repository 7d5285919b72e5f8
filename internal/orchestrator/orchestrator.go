// Package orchestrator drives the chat turn loop: it submits the
// transcript to the provider, relays stream events to the host, executes
// requested tools and feeds their results back until the model answers
// with plain text.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/yukin371/aide/internal/core"
	"github.com/yukin371/aide/internal/editor"
	"github.com/yukin371/aide/internal/tools"
	"github.com/yukin371/aide/pkg/logger"
)

// ErrBusy is returned by Submit while a turn is already in flight.
var ErrBusy = errors.New("a turn is already in flight")

// State is the orchestrator phase, visible to the host for UI feedback.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateExecutingTools
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	default:
		return "idle"
	}
}

// Listener receives turn progress callbacks. Nil fields are skipped.
// Callbacks run on the Submit goroutine, in event order.
type Listener struct {
	OnDelta     func(text string)
	OnReasoning func(text string)
	OnModelInfo func(model string)
	OnToolStart func(name, detail string)
	OnToolEnd   func(name, result string)
	OnFinal     func(text string)
	OnError     func(err error)
	OnState     func(state State)
}

// Options tunes a single orchestrator instance.
type Options struct {
	SystemPrompt  string
	TokenBudget   int     // transcript trim threshold, 0 disables trimming
	MaxToolRounds int     // model/tool round-trips per turn, default 8
	MaxTokens     int     // per-request completion cap, 0 lets the backend decide
	Temperature   float32 // 0 lets the backend decide
}

const defaultMaxToolRounds = 8

// Orchestrator owns one conversation. One turn runs at a time; Submit
// from another goroutine while busy fails fast with ErrBusy.
type Orchestrator struct {
	provider   core.Provider
	transcript *core.Transcript
	registry   *tools.Registry
	editor     editor.Editor
	listener   Listener
	opts       Options
	log        *logger.Logger

	turn sync.Mutex

	mu    sync.RWMutex
	state State
}

// New creates an orchestrator. The editor may be nil when no host
// surface exists; the system prompt then omits the context section.
func New(provider core.Provider, transcript *core.Transcript, registry *tools.Registry, ed editor.Editor, listener Listener, opts Options, log *logger.Logger) *Orchestrator {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	if log == nil {
		log = logger.Default()
	}
	return &Orchestrator{
		provider:   provider,
		transcript: transcript,
		registry:   registry,
		editor:     ed,
		listener:   listener,
		opts:       opts,
		log:        log,
	}
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	if o.listener.OnState != nil {
		o.listener.OnState(state)
	}
}

// Transcript exposes the conversation for persistence and inspection.
func (o *Orchestrator) Transcript() *core.Transcript {
	return o.transcript
}

// Submit runs one full user turn and blocks until the model produces a
// final text answer or the turn fails. On a transport or protocol
// failure the transcript is rolled back to its pre-submit state, so the
// same turn can be retried without duplicated messages. Tool failures
// never abort the turn; they are returned to the model as error payloads.
func (o *Orchestrator) Submit(ctx context.Context, userText string) error {
	if !o.turn.TryLock() {
		return ErrBusy
	}
	defer o.turn.Unlock()
	defer o.setState(StateIdle)

	if o.provider == nil {
		err := &core.ConfigurationError{Reason: "no provider configured"}
		o.emitError(err)
		return err
	}

	if o.transcript.Len() == 0 {
		o.transcript.Append(core.NewMessage(core.RoleSystem, o.systemPrompt()))
	}

	// Rollback target on abort: everything before this user message.
	snapshot := o.transcript.Len()
	o.transcript.Append(core.NewMessage(core.RoleUser, userText))

	descriptors := o.registry.List()

	for round := 0; ; round++ {
		if round >= o.opts.MaxToolRounds {
			err := &core.ProtocolError{Reason: fmt.Sprintf("tool round limit reached (%d)", o.opts.MaxToolRounds)}
			o.log.Warn("turn aborted: %v", err)
			o.emitError(err)
			return err
		}

		if o.opts.TokenBudget > 0 {
			o.transcript.Trim(o.opts.TokenBudget)
		}

		o.setState(StateAwaitingModel)
		events, err := o.provider.ChatStream(ctx, core.ChatRequest{
			Messages:    o.transcript.Messages(),
			Tools:       descriptors,
			MaxTokens:   o.opts.MaxTokens,
			Temperature: o.opts.Temperature,
			Stream:      true,
		})
		if err != nil {
			o.transcript.Rollback(snapshot)
			o.log.Error("request failed: %v", err)
			o.emitError(err)
			return err
		}

		content, toolCalls, streamErr := o.consume(events)
		if streamErr != nil {
			o.transcript.Rollback(snapshot)
			o.log.Error("stream failed: %v", streamErr)
			o.emitError(streamErr)
			return streamErr
		}

		assistant := core.NewMessage(core.RoleAssistant, content)
		assistant.ToolCalls = toolCalls
		o.transcript.Append(assistant)

		if len(toolCalls) == 0 {
			if o.listener.OnFinal != nil {
				o.listener.OnFinal(content)
			}
			return nil
		}

		o.setState(StateExecutingTools)
		o.runTools(ctx, toolCalls)
	}
}

// consume drains one stream. EventError becomes the turn error; all
// other events are relayed to the listener.
func (o *Orchestrator) consume(events <-chan core.StreamEvent) (string, []core.ToolCall, error) {
	var (
		content   strings.Builder
		toolCalls []core.ToolCall
		streamErr error
	)

	for event := range events {
		switch event.Type {
		case core.EventContent:
			content.WriteString(event.Content)
			if o.listener.OnDelta != nil {
				o.listener.OnDelta(event.Content)
			}
		case core.EventReasoning:
			if o.listener.OnReasoning != nil {
				o.listener.OnReasoning(event.Content)
			}
		case core.EventModelInfo:
			o.log.Debug("model: %s", event.Content)
			if o.listener.OnModelInfo != nil {
				o.listener.OnModelInfo(event.Content)
			}
		case core.EventToolCalls:
			toolCalls = event.ToolCalls
		case core.EventError:
			streamErr = &core.TransportError{Op: "stream", Err: errors.New(event.Content)}
		case core.EventDone:
		}
	}

	return content.String(), toolCalls, streamErr
}

// runTools executes the requested calls sequentially, in the order the
// model issued them, appending one tool result message per call.
func (o *Orchestrator) runTools(ctx context.Context, calls []core.ToolCall) {
	for _, call := range calls {
		detail := callDetail(call.Arguments)
		o.log.Info("tool %s %s", call.Name, detail)
		if o.listener.OnToolStart != nil {
			o.listener.OnToolStart(call.Name, detail)
		}

		result := o.registry.Call(ctx, call.Name, call.Arguments)

		if o.listener.OnToolEnd != nil {
			o.listener.OnToolEnd(call.Name, result)
		}

		msg := core.NewMessage(core.RoleTool, result)
		msg.ToolCallID = call.ID
		o.transcript.Append(msg)
	}
}

// callDetail extracts a short human-readable hint from tool arguments
// for progress notifications, without parsing the full document.
func callDetail(arguments string) string {
	for _, key := range []string{"path", "pattern", "cmd"} {
		if value := gjson.Get(arguments, key); value.Exists() {
			return value.String()
		}
	}
	return ""
}

func (o *Orchestrator) emitError(err error) {
	if o.listener.OnError != nil {
		o.listener.OnError(err)
	}
}

// systemPrompt assembles the first-turn system message, appending the
// active editor context when a host surface is attached.
func (o *Orchestrator) systemPrompt() string {
	prompt := o.opts.SystemPrompt
	if prompt == "" {
		prompt = "You are a coding assistant embedded in an editor. Use the available tools to inspect and modify the project when needed."
	}

	if o.editor == nil {
		return prompt
	}

	snapshot := o.editor.CurrentContext()
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nProject root: ")
	b.WriteString(o.editor.ProjectRoot())
	if snapshot.FilePath != "" {
		fmt.Fprintf(&b, "\nOpen file: %s (line %d)", snapshot.FilePath, snapshot.CursorLine)
		if snapshot.Language != "" {
			fmt.Fprintf(&b, "\nLanguage: %s", snapshot.Language)
		}
		if snapshot.SelectedText != "" {
			fmt.Fprintf(&b, "\nSelected text:\n%s", snapshot.SelectedText)
		}
	}
	return b.String()
}
