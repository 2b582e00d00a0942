package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// MemoryMedium is an in-process key-value medium. It is lost when the process exits.
type MemoryMedium struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{items: make(map[string]string)}
}

func (m *MemoryMedium) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	return value, ok, nil
}

func (m *MemoryMedium) SetItem(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// SQLiteMedium is a key-value medium in a single SQLite file, the on-device counterpart of
// browser local storage.
type SQLiteMedium struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenSQLiteMedium opens or creates the SQLite file at path. Parent directories are created if
// needed. It logs through slog.Default.
func OpenSQLiteMedium(path string) (*SQLiteMedium, error) {
	return OpenSQLiteMediumWithLogger(path, slog.Default())
}

// OpenSQLiteMediumWithLogger is OpenSQLiteMedium with an explicit logger.
func OpenSQLiteMediumWithLogger(path string, logger *slog.Logger) (*SQLiteMedium, error) {
	logger = logger.With("component", "sqlitemedium")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating medium directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening medium: %w", err)
	}
	// one writer at a time keeps SQLite from reporting busy errors
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	logger.Info("SQLite medium initialized", "path", path)
	return &SQLiteMedium{db: db, logger: logger}, nil
}

func (m *SQLiteMedium) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		m.logger.Error("reading from medium failed", "key", key, "error", err)
		return "", false, fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, true, nil
}

func (m *SQLiteMedium) SetItem(ctx context.Context, key string, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		m.logger.Error("writing to medium failed", "key", key, "bytes", len(value), "error", err)
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Close releases the database handle.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}
