package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gastos/internal/core"

	_ "modernc.org/sqlite"
)

// CollectionKey is the fixed key the whole collection is stored under.
const CollectionKey = "gastosApp"

// SQLiteStore keeps the collection snapshot and the remote replay state in
// one SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations first, on their own connection.
	if err := RunMigrations(dbPath); err != nil {
		return nil, err
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Writes are serialized by SQLite anyway; one connection avoids
	// SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   dbPath,
		now:    time.Now,
		logger: slog.Default().With("component", "storage"),
	}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save replaces the stored collection snapshot in a single statement.
func (s *SQLiteStore) Save(ctx context.Context, c core.Collection) error {
	data, err := core.EncodeCollection(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		CollectionKey, string(data), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	s.logger.DebugContext(ctx, "Collection saved to SQLite", "records", c.Len(), "bytes", len(data))
	return nil
}

// Load returns the stored collection, or an empty one when nothing was
// saved yet.
func (s *SQLiteStore) Load(ctx context.Context) (core.Collection, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, CollectionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewCollection(), nil
	}
	if err != nil {
		return core.Collection{}, fmt.Errorf("load collection: %w", err)
	}
	return core.DecodeCollection([]byte(value))
}
