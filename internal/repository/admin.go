package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/smartstamp/internal/models"
	"github.com/lib/pq"
)

// PostgresAdminRepository manages clients, stamps and permissions in PostgreSQL.
type PostgresAdminRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAdminRepository creates a new PostgresAdminRepository using the provided *sql.DB.
func NewPostgresAdminRepository(db *sql.DB) *PostgresAdminRepository {
	return &PostgresAdminRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateStamp inserts a new stamp and returns it with server-assigned timestamps.
//
//	ctx:   context for cancellation and deadlines
//	stamp: stamp to insert; ID, Name and Fingerprint must be set
func (r *PostgresAdminRepository) CreateStamp(ctx context.Context, stamp models.Stamp) (*models.Stamp, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO stamp_registry (id, name, fingerprint, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, fingerprint, description, created_at, updated_at
	`, stamp.ID, stamp.Name, pq.Float64Array(stamp.Fingerprint), stamp.Description)

	created, err := scanStamp(row)
	if err != nil {
		return nil, fmt.Errorf("CreateStamp: %w", err)
	}
	return created, nil
}

// ListStamps returns a page of stamps ordered by creation time.
func (r *PostgresAdminRepository) ListStamps(ctx context.Context, skip, limit int) ([]models.Stamp, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, name, fingerprint, description, created_at, updated_at
		FROM stamp_registry ORDER BY created_at, id OFFSET $1 LIMIT $2
	`, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("ListStamps: %w", err)
	}
	defer rows.Close()

	stamps := []models.Stamp{}
	for rows.Next() {
		s, err := scanStamp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stamps = append(stamps, *s)
	}
	return stamps, rows.Err()
}

// GetStamp returns the stamp with the given id or models.ErrNotFound.
func (r *PostgresAdminRepository) GetStamp(ctx context.Context, id string) (*models.Stamp, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, name, fingerprint, description, created_at, updated_at
		FROM stamp_registry WHERE id = $1
	`, id)

	s, err := scanStamp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetStamp: %w", err)
	}
	return s, nil
}

// DeleteStamp removes a stamp. Its permissions are removed by the foreign key cascade.
func (r *PostgresAdminRepository) DeleteStamp(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM stamp_registry WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteStamp: %w", err)
	}
	return expectAffected(res)
}

// CreateClient inserts a new API client.
func (r *PostgresAdminRepository) CreateClient(ctx context.Context, client models.Client) (*models.Client, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO api_clients (id, name, api_key, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, api_key, is_active, created_at, updated_at
	`, client.ID, client.Name, client.APIKey, client.IsActive)

	created, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("CreateClient: %w", err)
	}
	return created, nil
}

// ListClients returns a page of clients ordered by creation time.
func (r *PostgresAdminRepository) ListClients(ctx context.Context, skip, limit int) ([]models.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, name, api_key, is_active, created_at, updated_at
		FROM api_clients ORDER BY created_at, id OFFSET $1 LIMIT $2
	`, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("ListClients: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// GetClient returns the client with the given id or models.ErrNotFound.
func (r *PostgresAdminRepository) GetClient(ctx context.Context, id string) (*models.Client, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, name, api_key, is_active, created_at, updated_at
		FROM api_clients WHERE id = $1
	`, id)

	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetClient: %w", err)
	}
	return c, nil
}

// ToggleClient flips the active flag of a client and returns the updated row.
func (r *PostgresAdminRepository) ToggleClient(ctx context.Context, id string) (*models.Client, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE api_clients SET is_active = NOT is_active, updated_at = now()
		WHERE id = $1
		RETURNING id, name, api_key, is_active, created_at, updated_at
	`, id)

	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ToggleClient: %w", err)
	}
	return c, nil
}

// GrantPermission binds a client to a stamp. A previously revoked binding is
// reactivated and keeps its id. If the binding is already active,
// models.ErrAlreadyExists is returned.
func (r *PostgresAdminRepository) GrantPermission(ctx context.Context, p models.Permission) (*models.Permission, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO stamp_permissions (id, client_id, stamp_id, is_active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (client_id, stamp_id) DO UPDATE SET is_active = true
		WHERE stamp_permissions.is_active = false
		RETURNING id, client_id, stamp_id, is_active, created_at
	`, p.ID, p.ClientID, p.StampID)

	granted, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("GrantPermission: %w", err)
	}
	return granted, nil
}

// ListPermissions returns active permissions, optionally filtered by client
// and stamp. An empty filter value matches everything.
func (r *PostgresAdminRepository) ListPermissions(ctx context.Context, clientID, stampID string) ([]models.Permission, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, client_id, stamp_id, is_active, created_at
		FROM stamp_permissions
		WHERE is_active = true
		  AND ($1 = '' OR client_id = $1)
		  AND ($2 = '' OR stamp_id = $2)
		ORDER BY created_at, id
	`, clientID, stampID)
	if err != nil {
		return nil, fmt.Errorf("ListPermissions: %w", err)
	}
	defer rows.Close()

	perms := []models.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

// RevokePermission deactivates an active permission. The row is kept so the
// binding can be granted again later.
func (r *PostgresAdminRepository) RevokePermission(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE stamp_permissions SET is_active = false WHERE id = $1 AND is_active = true
	`, id)
	if err != nil {
		return fmt.Errorf("RevokePermission: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanStamp(row rowScanner) (*models.Stamp, error) {
	var (
		s    models.Stamp
		fp   pq.Float64Array
		desc sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &fp, &desc, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Fingerprint = []float64(fp)
	if desc.Valid {
		s.Description = &desc.String
	}
	return &s, nil
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.APIKey, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanPermission(row rowScanner) (*models.Permission, error) {
	var p models.Permission
	if err := row.Scan(&p.ID, &p.ClientID, &p.StampID, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
