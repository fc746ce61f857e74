// Package repository provides PostgreSQL persistence for stamp verification
// and administration.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/models"
	"github.com/lib/pq"
)

// PostgresVerifyRepository implements the read-only lookups and the audit log
// append used by stamp verification. It never writes client, stamp or
// permission rows.
type PostgresVerifyRepository struct {
	// DB is the pooled database handle for executing queries.
	DB *sql.DB
}

// NewPostgresVerifyRepository creates a new PostgresVerifyRepository with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance.
func NewPostgresVerifyRepository(db *sql.DB) *PostgresVerifyRepository {
	return &PostgresVerifyRepository{DB: db}
}

// LookupCallerByKey resolves an API key to the owning client.
// It returns nil without error if the key is unknown or the client is inactive.
func (r *PostgresVerifyRepository) LookupCallerByKey(ctx context.Context, apiKey string) (*models.Caller, error) {
	var caller models.Caller
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT id, name FROM api_clients WHERE api_key = $1 AND is_active = true`,
		apiKey,
	).Scan(&caller.ID, &caller.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupCallerByKey: %w", err)
	}
	return &caller, nil
}

// ListActivePermissions returns the ids of stamps the client may be verified
// against, oldest binding first.
func (r *PostgresVerifyRepository) ListActivePermissions(ctx context.Context, clientID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT stamp_id FROM stamp_permissions
		WHERE client_id = $1 AND is_active = true
		ORDER BY created_at, id
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("ListActivePermissions: %w", err)
	}
	defer rows.Close()

	var stampIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stampIDs = append(stampIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActivePermissions: %w", err)
	}
	return stampIDs, nil
}

// GetFingerprints returns the enrolled fingerprints of the given stamps keyed
// by stamp id. Unknown ids are absent from the result.
func (r *PostgresVerifyRepository) GetFingerprints(ctx context.Context, stampIDs []string) (map[string]fingerprint.Fingerprint, error) {
	result := make(map[string]fingerprint.Fingerprint, len(stampIDs))
	if len(stampIDs) == 0 {
		return result, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, fingerprint FROM stamp_registry WHERE id = ANY($1)
	`, pq.Array(stampIDs))
	if err != nil {
		return nil, fmt.Errorf("GetFingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			values pq.Float64Array
		)
		if err := rows.Scan(&id, &values); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result[id] = fingerprint.Fingerprint(values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetFingerprints: %w", err)
	}
	return result, nil
}

// AppendAuditLog stores one verification outcome. The insert is synchronous;
// a nil error means the row is committed.
func (r *PostgresVerifyRepository) AppendAuditLog(ctx context.Context, o models.Outcome) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO stamping_logs
			(client_id, stamp_id, status, fingerprint, error_message, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		o.ClientID,
		nullString(o.StampID),
		string(o.Status),
		fingerprintValue(o.Fingerprint),
		nullString(o.Reason),
		nullString(o.IPAddress),
		nullString(o.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("AppendAuditLog: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// fingerprintValue maps a nil fingerprint to SQL NULL.
func fingerprintValue(fp fingerprint.Fingerprint) any {
	if fp == nil {
		return nil
	}
	return pq.Float64Array(fp)
}
