// Package memory persists conversation history so follow-up questions can
// be answered with earlier exchanges in context.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Exchange is one question/answer pair in a conversation.
type Exchange struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store records and recalls conversation exchanges.
type Store interface {
	Remember(ctx context.Context, conversationID, question, answer string) error
	Context(ctx context.Context, conversationID string, limit int) ([]Exchange, error)
	Clear(ctx context.Context, conversationID string) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_conversation ON exchanges(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		mod_time INTEGER NOT NULL,
		size INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Remember appends one exchange to a conversation.
func (s *SQLiteStore) Remember(ctx context.Context, conversationID, question, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, conversation_id, question, answer, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, question, answer, time.Now(),
	)
	return err
}

// Context returns the most recent limit exchanges of a conversation in
// chronological order. An unknown conversation yields an empty slice.
func (s *SQLiteStore) Context(ctx context.Context, conversationID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, question, answer, created_at
		 FROM exchanges WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Question, &e.Answer, &e.CreatedAt); err != nil {
			return nil, err
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse newest-first into chronological order.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// FileUnchanged reports whether path was recorded with the same
// modification time and size. Unknown paths report false.
func (s *SQLiteStore) FileUnchanged(ctx context.Context, path string, modTime, size int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE path = ? AND mod_time = ? AND size = ?`,
		path, modTime, size,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RememberFile records the stat of an indexed file, replacing any earlier
// record of the same path.
func (s *SQLiteStore) RememberFile(ctx context.Context, path string, modTime, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, mod_time, size) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mod_time = excluded.mod_time, size = excluded.size`,
		path, modTime, size,
	)
	return err
}

// ClearFiles drops all recorded file states, forcing the next load to
// re-extract everything. Required after the vector collection is deleted,
// or skipped files would never be re-indexed.
func (s *SQLiteStore) ClearFiles(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files`)
	return err
}

// Clear removes all exchanges of a conversation.
func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE conversation_id = ?`, conversationID)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
