package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/models"
	"github.com/google/uuid"
)

// Paging defaults for list operations.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// AdminRepository defines the persistence operations needed by AdminService.
type AdminRepository interface {
	CreateStamp(ctx context.Context, stamp models.Stamp) (*models.Stamp, error)
	ListStamps(ctx context.Context, skip, limit int) ([]models.Stamp, error)
	GetStamp(ctx context.Context, id string) (*models.Stamp, error)
	DeleteStamp(ctx context.Context, id string) error

	CreateClient(ctx context.Context, client models.Client) (*models.Client, error)
	ListClients(ctx context.Context, skip, limit int) ([]models.Client, error)
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ToggleClient(ctx context.Context, id string) (*models.Client, error)

	// GrantPermission returns models.ErrAlreadyExists if the binding is active.
	GrantPermission(ctx context.Context, p models.Permission) (*models.Permission, error)
	ListPermissions(ctx context.Context, clientID, stampID string) ([]models.Permission, error)
	RevokePermission(ctx context.Context, id string) error
}

// AdminService manages stamps, API clients and the permissions binding them.
type AdminService struct {
	repo   AdminRepository
	newID  func() string
	newKey func() (string, error)
}

// NewAdminService constructs an AdminService using the provided repository.
func NewAdminService(repo AdminRepository) *AdminService {
	return &AdminService{repo: repo, newID: uuid.NewString, newKey: GenerateAPIKey}
}

// GenerateAPIKey returns a new key of the form "sk_" followed by 32 hex
// characters derived from 32 random bytes.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	sum := sha256.Sum256(buf)
	return "sk_" + hex.EncodeToString(sum[:])[:32], nil
}

// CalibrateStamp computes the fingerprint of points and enrolls a new stamp.
func (s *AdminService) CalibrateStamp(ctx context.Context, name string, points []fingerprint.Point, description *string) (*models.Stamp, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	fp, err := fingerprint.Extract(points)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateStamp(ctx, models.Stamp{
		ID:          s.newID(),
		Name:        name,
		Fingerprint: fp,
		Description: description,
	})
}

func (s *AdminService) ListStamps(ctx context.Context, skip, limit int) ([]models.Stamp, error) {
	skip, limit = page(skip, limit)
	return s.repo.ListStamps(ctx, skip, limit)
}

func (s *AdminService) GetStamp(ctx context.Context, id string) (*models.Stamp, error) {
	return s.repo.GetStamp(ctx, id)
}

// DeleteStamp removes a stamp together with its permissions.
func (s *AdminService) DeleteStamp(ctx context.Context, id string) error {
	return s.repo.DeleteStamp(ctx, id)
}

// CreateClient registers an active client with a freshly generated API key.
func (s *AdminService) CreateClient(ctx context.Context, name string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	key, err := s.newKey()
	if err != nil {
		return nil, err
	}
	return s.repo.CreateClient(ctx, models.Client{
		ID:       s.newID(),
		Name:     name,
		APIKey:   key,
		IsActive: true,
	})
}

func (s *AdminService) ListClients(ctx context.Context, skip, limit int) ([]models.Client, error) {
	skip, limit = page(skip, limit)
	return s.repo.ListClients(ctx, skip, limit)
}

func (s *AdminService) GetClient(ctx context.Context, id string) (*models.Client, error) {
	return s.repo.GetClient(ctx, id)
}

// ToggleClient enables a disabled client or disables an enabled one. A
// disabled client's key stops authenticating on its next request.
func (s *AdminService) ToggleClient(ctx context.Context, id string) (*models.Client, error) {
	return s.repo.ToggleClient(ctx, id)
}

// GrantPermission allows clientID to be verified against stampID. Both must
// exist; the error then wraps ErrNotFound naming the missing one.
func (s *AdminService) GrantPermission(ctx context.Context, clientID, stampID string) (*models.Permission, error) {
	if clientID == "" || stampID == "" {
		return nil, fmt.Errorf("%w: client_id and stamp_id are required", ErrInvalidArgument)
	}
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client %s: %w", clientID, err)
	}
	if _, err := s.repo.GetStamp(ctx, stampID); err != nil {
		return nil, fmt.Errorf("stamp %s: %w", stampID, err)
	}
	return s.repo.GrantPermission(ctx, models.Permission{
		ID:       s.newID(),
		ClientID: clientID,
		StampID:  stampID,
	})
}

// ListPermissions returns active permissions; empty filters match all.
func (s *AdminService) ListPermissions(ctx context.Context, clientID, stampID string) ([]models.Permission, error) {
	return s.repo.ListPermissions(ctx, clientID, stampID)
}

// RevokePermission deactivates a permission. Verification stops using it on
// the next request.
func (s *AdminService) RevokePermission(ctx context.Context, id string) error {
	return s.repo.RevokePermission(ctx, id)
}

func page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return skip, limit
}
