package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "lingualive.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feature_flags (
			feature TEXT PRIMARY KEY,
			accepted INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create feature_flags table: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// GetFlag reports whether a feature flag is enabled. Unknown flags read
// as disabled rather than erroring so the UI can probe freely.
func (s *SQLiteStore) GetFlag(name string) (bool, error) {
	row := s.db.QueryRow(`SELECT accepted FROM feature_flags WHERE feature = ?`, name)

	var accepted int
	if err := row.Scan(&accepted); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("query flag %s: %w", name, err)
	}
	return accepted != 0, nil
}

func (s *SQLiteStore) SetFlag(name string, enabled bool) error {
	accepted := 0
	if enabled {
		accepted = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO feature_flags(feature, accepted, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(feature) DO UPDATE SET accepted = excluded.accepted, updated_at = excluded.updated_at`,
		name,
		accepted,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set flag %s: %w", name, err)
	}
	return nil
}
