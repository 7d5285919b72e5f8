// Package session tracks named conversations and their persistence.
package session

import (
	"context"
	"time"

	"github.com/yukin371/aide/internal/core"
)

// Session is the metadata record for one conversation.
type Session struct {
	ID        string
	Name      string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToolExecution is one recorded tool call within a session.
type ToolExecution struct {
	SessionID string
	Tool      string
	Detail    string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

// Storage persists sessions, their transcripts and their tool history.
type Storage interface {
	SaveSession(ctx context.Context, sess *Session) error
	LoadSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	SaveTranscript(ctx context.Context, sessionID string, messages []core.Message) error
	LoadTranscript(ctx context.Context, sessionID string) ([]core.Message, error)

	SaveToolExecution(ctx context.Context, exec *ToolExecution) error
	ListToolExecutions(ctx context.Context, sessionID string) ([]*ToolExecution, error)

	Close() error
}
