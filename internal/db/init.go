package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_clients (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    api_key TEXT NOT NULL UNIQUE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stamp_registry (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    fingerprint DOUBLE PRECISION[] NOT NULL,
    description TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stamp_permissions (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES api_clients(id) ON DELETE CASCADE,
    stamp_id TEXT NOT NULL REFERENCES stamp_registry(id) ON DELETE CASCADE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (client_id, stamp_id)
);

CREATE INDEX IF NOT EXISTS stamp_permissions_client_idx ON stamp_permissions (client_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS stamping_logs (
    id BIGSERIAL PRIMARY KEY,
    client_id TEXT NOT NULL,
    stamp_id TEXT,
    status TEXT NOT NULL,
    fingerprint DOUBLE PRECISION[],
    error_message TEXT,
    ip_address TEXT,
    user_agent TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS stamping_logs_created_idx ON stamping_logs (created_at);
`

// Pool limits applied to every connection opened by InitPostgres.
const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
)

// InitPostgres opens a pooled connection to PostgreSQL, checks it and creates
// the schema if it does not exist yet.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
