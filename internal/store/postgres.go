package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);
`

var postgresDialect = dialect{
	get:  `SELECT value FROM kv WHERE name = $1`,
	lock: `SELECT pg_advisory_xact_lock(7425)`,
	put:  `INSERT INTO kv (name, value, updated_at) VALUES ($1, $2, $3)
	      ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
}

// OpenPostgres connects to the Postgres database at dsn and returns a store
// on top of it.
func OpenPostgres(dsn string, opts ...Option) (*KVStore, error) {
	b, err := NewPostgresBackend(dsn)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

func NewPostgresBackend(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLBackend{db: db, dialect: postgresDialect}, nil
}
