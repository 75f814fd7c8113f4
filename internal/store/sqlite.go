// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/firoagni/ai-development-tutorials/internal/model"

	_ "modernc.org/sqlite"
)

const (
	timeFormat   = time.RFC3339Nano
	maxExchanges = 100
)

// SQLiteStore implements model.ExchangeStore backed by a SQLite database.
// It is an audit log: nothing read from it flows back into a conversation.
type SQLiteStore struct {
	db   *sql.DB
	lock *fileLock
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath, takes
// the writer lock, enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	lock, err := tryLock(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.release()
		return nil, fmt.Errorf("open database: %w", err)
	}

	fail := func(format string, err error) (*SQLiteStore, error) {
		_ = db.Close()
		_ = lock.release()
		return nil, fmt.Errorf(format, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fail("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fail("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, lock: lock}, nil
}

// SaveExchange persists one question/answer exchange.
func (s *SQLiteStore) SaveExchange(e *model.Exchange) error {
	_, err := s.db.Exec(`
		INSERT INTO exchanges (session_id, question, answer, error, model, model_calls, tool_calls, trimmed,
			input_tokens, output_tokens, total_tokens, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID,
		e.Question,
		e.Answer,
		e.Error,
		e.Model,
		e.ModelCalls,
		e.ToolCalls,
		e.Trimmed,
		e.Usage.InputTokens,
		e.Usage.OutputTokens,
		e.Usage.TotalTokens,
		e.StartTime.Format(timeFormat),
		e.EndTime.Format(timeFormat),
		e.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// GetExchanges returns up to limit exchanges of a session, most recent
// first. limit is clamped to [1, 100].
func (s *SQLiteStore) GetExchanges(sessionID string, limit int) ([]*model.Exchange, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxExchanges {
		limit = maxExchanges
	}

	rows, err := s.db.Query(`
		SELECT session_id, question, answer, error, model, model_calls, tool_calls, trimmed,
			input_tokens, output_tokens, total_tokens, start_time, end_time, duration
		FROM exchanges
		WHERE session_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*model.Exchange
	for rows.Next() {
		var e model.Exchange
		var startStr, endStr string
		if err := rows.Scan(
			&e.SessionID, &e.Question, &e.Answer, &e.Error, &e.Model,
			&e.ModelCalls, &e.ToolCalls, &e.Trimmed,
			&e.Usage.InputTokens, &e.Usage.OutputTokens, &e.Usage.TotalTokens,
			&startStr, &endStr, &e.Duration,
		); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		e.StartTime, _ = time.Parse(timeFormat, startStr)
		e.EndTime, _ = time.Parse(timeFormat, endStr)
		exchanges = append(exchanges, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange rows: %w", err)
	}

	return exchanges, nil
}

// Close closes the underlying database connection and releases the lock.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if lerr := s.lock.release(); err == nil {
		err = lerr
	}
	return err
}
