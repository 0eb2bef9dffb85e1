package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const createKVTableStmt = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLiteStore keeps the ledger in a single-row key/value table of a local
// SQLite file, which several processes on one host can share.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	// immediate transactions take the write lock up front so concurrent
	// read-modify-write cycles serialize instead of failing on upgrade
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	if _, err := db.ExecContext(ctx, createKVTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load reads the request list
func (s *SQLiteStore) Load(ctx context.Context) ([]core.CredentialRequest, error) {
	raw, err := s.get(ctx, s.db)
	if err != nil {
		return nil, err
	}

	return decodeRequests(raw)
}

// Mutate applies fn inside a write transaction
func (s *SQLiteStore) Mutate(ctx context.Context, fn ports.MutateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v: %w", err, core.ErrStore)
	}
	defer tx.Rollback() //nolint:errcheck

	raw, err := s.get(ctx, tx)
	if err != nil {
		return err
	}

	current, err := decodeRequests(raw)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	encoded, err := encodeRequests(next)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		ports.LedgerKey, encoded,
	)
	if err != nil {
		return fmt.Errorf("failed to write ledger: %v: %w", err, core.ErrStore)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %v: %w", err, core.ErrStore)
	}

	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer) ([]byte, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", ports.LedgerKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %v: %w", err, core.ErrStore)
	}
	return raw, nil
}

var _ ports.LedgerStore = (*SQLiteStore)(nil)
