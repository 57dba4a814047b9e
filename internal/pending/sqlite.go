package pending

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_writes (
	session_id TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLite is a file-backed Store.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pending store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping pending store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pending store schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(sessionID string) (string, bool, error) {
	var content string
	err := s.db.QueryRow(
		"SELECT content FROM pending_writes WHERE session_id = ?", sessionID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get pending write: %w", err)
	}
	return content, true, nil
}

func (s *SQLite) Set(sessionID, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO pending_writes (session_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		sessionID, content, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set pending write: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM pending_writes WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear pending write: %w", err)
	}
	return nil
}

func (s *SQLite) Preference(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference: %w", err)
	}
	return value, true, nil
}

func (s *SQLite) SetPreference(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
