package service

import (
	"errors"

	"github.com/atinyakov/smartstamp/internal/models"
)

var (
	// ErrUnauthorized means the API key is unknown or its client is inactive.
	ErrUnauthorized = errors.New("invalid API key")
	// ErrNoPermissions means the client is not bound to any stamp.
	ErrNoPermissions = errors.New("no permissions")
	// ErrSigning means a match was accepted but the token could not be signed.
	ErrSigning = errors.New("failed to sign token")
	// ErrStorage means a storage call failed or timed out.
	ErrStorage = errors.New("storage failure")
	// ErrInternal means the attempt was aborted by an unexpected failure.
	ErrInternal = errors.New("internal error")
	// ErrInvalidArgument is returned by admin operations for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNotFound      = models.ErrNotFound
	ErrAlreadyExists = models.ErrAlreadyExists
)

// Rejection is returned when a verification attempt is refused for a reason
// the caller may see. It unwraps to the underlying cause so errors.Is still
// works against fingerprint, matcher and service sentinels.
type Rejection struct {
	Reason string
	Err    error
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error { return r.Err }
