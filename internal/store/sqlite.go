package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

// dialect carries the statements that differ between SQL engines.
type dialect struct {
	get string
	put string
	// lock, when set, runs first in every write transaction.
	lock string
}

var sqliteDialect = dialect{
	get: `SELECT value FROM kv WHERE name = ?`,
	put: `INSERT INTO kv (name, value, updated_at) VALUES (?, ?, ?)
	      ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
}

// SQLBackend stores namespace values as rows of a single kv table.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens (creating if needed) the SQLite database at dbPath and
// returns a store on top of it.
func OpenSQLite(dbPath string, opts ...Option) (*KVStore, error) {
	b, err := NewSQLiteBackend(dbPath)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

func NewSQLiteBackend(dbPath string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; SQLite would otherwise answer
	// concurrent write transactions with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLBackend{db: db, dialect: sqliteDialect}, nil
}

func (b *SQLBackend) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&sqlTx{ctx: ctx, tx: tx, dialect: b.dialect})
}

func (b *SQLBackend) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if b.dialect.lock != "" {
		if _, err := tx.ExecContext(ctx, b.dialect.lock); err != nil {
			return fmt.Errorf("failed to lock store: %w", err)
		}
	}
	if err := fn(&sqlTx{ctx: ctx, tx: tx, dialect: b.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// DB returns the underlying database connection for health checks
func (b *SQLBackend) DB() *sql.DB {
	return b.db
}

type sqlTx struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect dialect
}

func (t *sqlTx) Get(key string) ([]byte, error) {
	var value string
	err := t.tx.QueryRowContext(t.ctx, t.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (t *sqlTx) Put(key string, value []byte) error {
	_, err := t.tx.ExecContext(t.ctx, t.dialect.put, key, string(value), time.Now().Unix())
	return err
}
