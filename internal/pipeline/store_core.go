package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/internal/config"
	"vigil/internal/sqliteutil"
)

// Store persists videos, pipeline executions, and triggers in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the pipeline database described by cfg and
// initializes the schema.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	dbPath := cfg.PipelineDatabasePath()
	db, err := sqliteutil.Open(dbPath)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Health verifies the database answers queries and passes SQLite's
// integrity check.
func (s *Store) Health(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("pipeline store is not open")
	}
	ctx = sqliteutil.EnsureContext(ctx)
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(checkCtx); err != nil {
		return fmt.Errorf("ping pipeline database: %w", err)
	}
	var result string
	if err := s.db.QueryRowContext(checkCtx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("pipeline database integrity check: %w", err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("pipeline database integrity check reported %q", result)
	}
	return nil
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return sqliteutil.Exec(ctx, s.db, query, args...)
}
