package core

import (
	"sync"
	"time"
)

// tokenOverhead is the fixed per-message cost added to the length-based
// estimate, covering role tags and framing the proxy cannot see.
const tokenOverhead = 10

// Transcript is the ordered conversation history sent to the model on
// every turn. It is mutated only through Append, Trim, Rollback and
// Clear; order is append-only.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]Message, 0)}
}

// Append adds a message to the end of the transcript. Timestamps are
// forced monotonic non-decreasing.
func (t *Transcript) Append(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if n := len(t.messages); n > 0 && msg.Timestamp.Before(t.messages[n-1].Timestamp) {
		msg.Timestamp = t.messages[n-1].Timestamp
	}
	t.messages = append(t.messages, msg)
}

// Messages returns a copy of all messages.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	messages := make([]Message, len(t.messages))
	copy(messages, t.messages)
	return messages
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.messages)
}

// EstimateTokens returns a cheap deterministic token estimate: content
// length divided by four plus a fixed overhead per message. Exact
// tokenization is backend-specific and the budget is advisory, so a
// proxy is good enough.
func (t *Transcript) EstimateTokens() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.estimateLocked()
}

func (t *Transcript) estimateLocked() int {
	count := 0
	for _, msg := range t.messages {
		count += len(msg.Content)/4 + tokenOverhead
	}
	return count
}

// Trim removes old messages until the estimate fits maxTokens or a single
// message remains. While the oldest message is the system prompt and more
// than two messages remain, the second message is removed instead, so the
// system prompt survives as long as any other content exists. Removing
// the oldest message first would delete the system prompt and degrade
// every later turn.
func (t *Transcript) Trim(maxTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.estimateLocked() > maxTokens && len(t.messages) > 1 {
		if t.messages[0].Role == RoleSystem && len(t.messages) > 2 {
			t.messages = append(t.messages[:1], t.messages[2:]...)
		} else {
			t.messages = t.messages[1:]
		}
	}
}

// Rollback truncates the transcript back to n messages. Used to restore
// the pre-request state when a turn aborts, so the caller can retry the
// same turn cleanly.
func (t *Transcript) Rollback(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n < len(t.messages) {
		t.messages = t.messages[:n]
	}
}

// Clear removes all messages; used when the caller starts a new
// conversation.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = make([]Message, 0)
}
