// Package session provides conversation session storage.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ylzuimeng/rag-chatbot/internal/agent"
	"github.com/ylzuimeng/rag-chatbot/internal/llm"
)

// Store is a SQLite-backed session store. It keeps the full exchange
// history for auditing; reads are windowed.
type Store struct {
	db            *sql.DB
	historyWindow int // exchange pairs returned by History
}

// New opens (creating if needed) the session store at dbPath.
// historyWindow is the number of recent user/assistant exchange pairs
// included as context for the next query.
func New(dbPath string, historyWindow int) (*Store, error) {
	if historyWindow <= 0 {
		historyWindow = 2
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, historyWindow: historyWindow}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	-- Tool executions, queryable per session
	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		tool_name TEXT NOT NULL,
		is_error BOOLEAN NOT NULL DEFAULT FALSE,
		duration_ms INTEGER,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create starts a new session and returns its ID.
func (s *Store) Create(ctx context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
	`, id.String(), now, now)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id.String(), nil
}

// Exists reports whether a session is known.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// AddExchange records one completed query/answer pair and its tool
// executions.
func (s *Store) AddExchange(ctx context.Context, sessionID, query, answer string, outcomes []agent.ToolOutcome) error {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
	`, sessionID, now, now); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	for i, pair := range []struct{ role, content string }{
		{"user", query},
		{"assistant", answer},
	} {
		msgID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		// Offset keeps user before assistant under a coarse clock.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, msgID.String(), sessionID, pair.role, pair.content,
			now.Add(time.Duration(i)*time.Microsecond)); err != nil {
			return fmt.Errorf("insert %s message: %w", pair.role, err)
		}
	}

	for _, out := range outcomes {
		callID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate tool call id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (id, session_id, round, tool_name, is_error, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, callID.String(), sessionID, out.Round, out.Name, out.IsError,
			out.DurationMs, now); err != nil {
			return fmt.Errorf("insert tool call: %w", err)
		}
	}

	return tx.Commit()
}

// History returns the most recent exchange pairs for a session, oldest
// first, ready to prepend to the next query.
func (s *Store) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM messages
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, sessionID, s.historyWindow*2)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var reversed []llm.Message
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		history = append(history, reversed[i])
	}
	return history, nil
}

// Delete removes a session and its messages and tool calls.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM tool_calls WHERE session_id = ?`,
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return tx.Commit()
}

// ToolCallCount returns how many tool executions a session has recorded.
func (s *Store) ToolCallCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tool_calls WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
