package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xtendabl/expensabl/internal/common"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultQuotaBytes mirrors the 10 MB quota of the original extension-local
// store.
const DefaultQuotaBytes = 10 * 1024 * 1024

// SQLiteProvider is the persistent, quota-limited Provider. A flat kv table
// stands in for the extension-local key-value store; each Set or Remove call
// runs inside one sql transaction, which supplies the per-call bulk-write
// atomicity the Provider contract requires.
type SQLiteProvider struct {
	db         *sql.DB
	dbPath     string
	quotaBytes int64
}

// SQLiteOption configures a SQLiteProvider.
type SQLiteOption func(*SQLiteProvider)

// WithQuota overrides the total stored-bytes quota. Zero disables the check.
func WithQuota(bytes int64) SQLiteOption {
	return func(p *SQLiteProvider) { p.quotaBytes = bytes }
}

// NewSQLiteProvider creates a new persistent provider backed by a SQLite
// database at dbPath.
func NewSQLiteProvider(dbPath string, opts ...SQLiteOption) (*SQLiteProvider, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: failed to ping database: %v", common.ErrStorageUnavailable, err)
	}

	p := &SQLiteProvider{
		db:         db,
		dbPath:     dbPath,
		quotaBytes: DefaultQuotaBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Migrate creates the backing schema if it does not exist.
func (p *SQLiteProvider) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

func (p *SQLiteProvider) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key %q: %v", common.ErrStorageUnavailable, key, err)
	}
	return json.RawMessage(value), nil
}

func (p *SQLiteProvider) Set(ctx context.Context, values map[string]json.RawMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin write: %v", common.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if p.quotaBytes > 0 {
		if err := p.checkQuota(ctx, tx, values); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err := stmt.ExecContext(ctx, k, string(v)); err != nil {
			return fmt.Errorf("failed to write key %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit write: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

// checkQuota enforces the total-bytes bound inside the write transaction,
// counting the incoming values in place of any keys they replace.
func (p *SQLiteProvider) checkQuota(ctx context.Context, tx *sql.Tx, values map[string]json.RawMessage) error {
	keys := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	var incoming int64
	for k, v := range values {
		keys = append(keys, "?")
		args = append(args, k)
		incoming += int64(len(v))
	}

	query := fmt.Sprintf(
		`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv WHERE key NOT IN (%s)`,
		strings.Join(keys, ","))

	var existing int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&existing); err != nil {
		return fmt.Errorf("failed to measure store size: %w", err)
	}

	if existing+incoming > p.quotaBytes {
		return fmt.Errorf("%w: %d bytes exceeds quota of %d",
			common.ErrQuotaExceeded, existing+incoming, p.quotaBytes)
	}
	return nil
}

func (p *SQLiteProvider) Remove(ctx context.Context, keys []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin delete: %v", common.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`DELETE FROM kv WHERE key IN (%s)`, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit delete: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (p *SQLiteProvider) IsAvailable(ctx context.Context) bool {
	return p.db.PingContext(ctx) == nil
}
