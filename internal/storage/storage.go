// Package storage provides SQLite-backed persistence for the processed
// transaction journal. It lets the dedup guard survive restarts.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding the processed-transaction journal.
type Storage struct {
	db       *sql.DB
	capacity int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/roblox-ranking-system/dedup.db.
func New(capacity int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "roblox-ranking-system", "dedup.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, capacity: capacity}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE
		)`)
	return err
}

// LoadKeys returns the newest capacity keys in insertion order, oldest first.
func (s *Storage) LoadKeys() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT key FROM (
			SELECT seq, key FROM processed_transactions ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan journal key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// SaveKeys replaces the journal contents with keys, preserving their order.
// Used as a checkpoint: the in-memory store is already capacity-bounded.
func (s *Storage) SaveKeys(keys []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM processed_transactions`); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO processed_transactions (key) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, key := range keys {
		if _, err := stmt.Exec(key); err != nil {
			return fmt.Errorf("failed to insert journal key: %w", err)
		}
	}

	return tx.Commit()
}

// Trim keeps at most capacity newest keys.
func (s *Storage) Trim() error {
	_, err := s.db.Exec(`
		DELETE FROM processed_transactions WHERE seq NOT IN (
			SELECT seq FROM processed_transactions ORDER BY seq DESC LIMIT ?
		)`, s.capacity)
	if err != nil {
		return fmt.Errorf("failed to trim journal: %w", err)
	}
	return nil
}
