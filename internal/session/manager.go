package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yukin371/aide/internal/core"
)

// Manager creates, resumes and persists sessions through a Storage
// backend. A nil storage disables persistence; every method then works
// on throwaway in-memory records.
type Manager struct {
	storage Storage
}

// NewManager creates a session manager.
func NewManager(storage Storage) *Manager {
	return &Manager{storage: storage}
}

// Create starts a new session and persists its metadata.
func (m *Manager) Create(ctx context.Context, name, model string) (*Session, error) {
	now := time.Now()
	if name == "" {
		name = "session " + now.Format("2006-01-02 15:04")
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Name:      name,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if m.storage != nil {
		if err := m.storage.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	return sess, nil
}

// Resume loads a session and its transcript.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Session, []core.Message, error) {
	if m.storage == nil {
		return nil, nil, fmt.Errorf("persistence is disabled")
	}

	sess, err := m.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	messages, err := m.storage.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load transcript: %w", err)
	}
	return sess, messages, nil
}

// Save persists the session metadata and its current transcript.
func (m *Manager) Save(ctx context.Context, sess *Session, transcript *core.Transcript) error {
	if m.storage == nil {
		return nil
	}

	sess.UpdatedAt = time.Now()
	if err := m.storage.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := m.storage.SaveTranscript(ctx, sess.ID, transcript.Messages()); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// RecordTool appends one tool execution to the session's tool history.
func (m *Manager) RecordTool(ctx context.Context, exec *ToolExecution) error {
	if m.storage == nil {
		return nil
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now()
	}
	return m.storage.SaveToolExecution(ctx, exec)
}

// ToolHistory returns a session's recorded tool executions in order.
func (m *Manager) ToolHistory(ctx context.Context, sessionID string) ([]*ToolExecution, error) {
	if m.storage == nil {
		return nil, nil
	}
	return m.storage.ListToolExecutions(ctx, sessionID)
}

// List returns all persisted sessions, most recently updated first.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	if m.storage == nil {
		return nil, nil
	}
	return m.storage.ListSessions(ctx)
}

// Delete removes a session and its transcript.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if m.storage == nil {
		return fmt.Errorf("persistence is disabled")
	}
	return m.storage.DeleteSession(ctx, sessionID)
}
