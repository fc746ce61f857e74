// Package models defines the core data structures for clients, stamps,
// permissions and verification outcomes.
package models

import (
	"errors"
	"time"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
)

// Caller is the identity resolved from an active API key.
type Caller struct {
	// ID is the unique identifier of the API client.
	ID string
	// Name is the display name of the API client.
	Name string
}

// Client is an API client as managed by administrators.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stamp is an enrolled physical stamp and its reference fingerprint.
type Stamp struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Description *string                 `json:"description"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Permission binds a client to a stamp it may be verified against.
type Permission struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	StampID   string    `json:"stamp_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeStatus is the result label of a verification attempt.
type OutcomeStatus string

const (
	// StatusValid means the stamp matched and a token was issued.
	StatusValid OutcomeStatus = "valid"
	// StatusInvalid means the attempt was rejected.
	StatusInvalid OutcomeStatus = "invalid"
	// StatusError means the attempt failed for reasons outside the caller's control.
	StatusError OutcomeStatus = "error"
)

// Outcome is the audit record of one verification attempt.
// It is appended once and never modified.
type Outcome struct {
	ClientID string
	// StampID is set only for valid outcomes.
	StampID string
	Status  OutcomeStatus
	// Fingerprint is the probe fingerprint, nil if it could not be computed.
	Fingerprint fingerprint.Fingerprint
	Reason      string
	IPAddress   string
	UserAgent   string
}

// ErrNotFound is returned by storage lookups when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an equivalent active row is already stored.
var ErrAlreadyExists = errors.New("already exists")
