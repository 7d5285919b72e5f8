// Package storage implements session persistence on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yukin371/aide/internal/core"
	"github.com/yukin371/aide/internal/session"
)

// SQLiteStore implements session.Storage on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite does not support concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_call_id TEXT,
		tool_calls TEXT,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tool_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		detail TEXT,
		result TEXT,
		duration_ms INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_tool_executions_session_id ON tool_executions(session_id);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveSession upserts session metadata.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT OR REPLACE INTO sessions (id, name, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.Name,
		sess.Model,
		sess.CreatedAt.Unix(),
		sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession loads session metadata by id.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	query := `SELECT id, name, model, created_at, updated_at FROM sessions WHERE id = ?`

	var sess session.Session
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.ID, &sess.Name, &sess.Model, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*session.Session, error) {
	query := `SELECT id, name, model, created_at, updated_at FROM sessions ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var sess session.Session
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.Model, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	// Cascade is not guaranteed without foreign_keys pragma; delete explicitly.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tool_executions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete tool executions: %w", err)
	}
	return nil
}

// SaveToolExecution appends one tool history row.
func (s *SQLiteStore) SaveToolExecution(ctx context.Context, exec *session.ToolExecution) error {
	query := `
		INSERT INTO tool_executions (session_id, tool, detail, result, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		exec.SessionID,
		exec.Tool,
		exec.Detail,
		exec.Result,
		exec.Duration.Milliseconds(),
		exec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tool execution: %w", err)
	}
	return nil
}

// ListToolExecutions returns a session's tool history in insertion order.
func (s *SQLiteStore) ListToolExecutions(ctx context.Context, sessionID string) ([]*session.ToolExecution, error) {
	query := `
		SELECT tool, detail, result, duration_ms, timestamp
		FROM tool_executions
		WHERE session_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool executions: %w", err)
	}
	defer rows.Close()

	var execs []*session.ToolExecution
	for rows.Next() {
		exec := &session.ToolExecution{SessionID: sessionID}
		var durationMS, timestamp int64
		if err := rows.Scan(&exec.Tool, &exec.Detail, &exec.Result, &durationMS, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan tool execution: %w", err)
		}
		exec.Duration = time.Duration(durationMS) * time.Millisecond
		exec.Timestamp = time.UnixMilli(timestamp)
		execs = append(execs, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tool executions: %w", err)
	}
	return execs, nil
}

// SaveTranscript replaces the stored transcript of a session. The whole
// write runs in one transaction so a crash never leaves a half
// transcript behind.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, sessionID string, messages []core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, seq, role, content, tool_call_id, tool_calls, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for seq, msg := range messages {
		var toolCallsJSON string
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to marshal tool calls: %w", err)
			}
			toolCallsJSON = string(data)
		}

		if _, err := stmt.ExecContext(ctx, sessionID, seq, string(msg.Role), msg.Content,
			msg.ToolCallID, toolCallsJSON, msg.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadTranscript returns a session's messages in transcript order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]core.Message, error) {
	query := `
		SELECT role, content, tool_call_id, tool_calls, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var role, content string
		var toolCallID, toolCallsJSON sql.NullString
		var timestamp int64

		if err := rows.Scan(&role, &content, &toolCallID, &toolCallsJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg := core.Message{
			Role:      core.Role(role),
			Content:   content,
			Timestamp: time.UnixMilli(timestamp),
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		if toolCallsJSON.Valid && toolCallsJSON.String != "" {
			if err := json.Unmarshal([]byte(toolCallsJSON.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
