// Package service provides the stamp verification and administration
// business logic, delegating persistence to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/matcher"
	"github.com/atinyakov/smartstamp/internal/metrics"
	"github.com/atinyakov/smartstamp/internal/models"
	"go.uber.org/zap"
)

// VerifyRepository defines the persistence operations needed by VerifyService.
type VerifyRepository interface {
	// LookupCallerByKey returns nil without error for unknown or inactive keys.
	LookupCallerByKey(ctx context.Context, apiKey string) (*models.Caller, error)
	// ListActivePermissions returns permitted stamp ids in a stable order.
	ListActivePermissions(ctx context.Context, clientID string) ([]string, error)
	GetFingerprints(ctx context.Context, stampIDs []string) (map[string]fingerprint.Fingerprint, error)
	// AppendAuditLog must not return before the entry is durable.
	AppendAuditLog(ctx context.Context, o models.Outcome) error
}

// TokenIssuer signs verification tokens.
type TokenIssuer interface {
	Issue(stampID, status string, ttl time.Duration) (string, error)
}

// VerifyConfig holds the tunables of VerifyService.
type VerifyConfig struct {
	Tolerance matcher.Tolerance
	TokenTTL  time.Duration
	// StorageTimeout bounds all storage calls of one attempt.
	StorageTimeout time.Duration
}

// VerifyRequest is one verification attempt.
type VerifyRequest struct {
	APIKey    string
	Points    []fingerprint.Point
	IPAddress string
	UserAgent string
}

// VerifyResult is returned for an accepted stamp.
type VerifyResult struct {
	StampID  string
	Token    string
	MSE      float64
	MaxError float64
}

// VerifyService authenticates the caller, matches the presented points
// against the caller's permitted stamps, issues a token on success and
// records every attempt after identity resolution in the audit log.
type VerifyService struct {
	repo    VerifyRepository
	issuer  TokenIssuer
	cfg     VerifyConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewVerifyService constructs a VerifyService. m may be nil.
func NewVerifyService(repo VerifyRepository, issuer TokenIssuer, cfg VerifyConfig, log *zap.Logger, m *metrics.Metrics) *VerifyService {
	return &VerifyService{repo: repo, issuer: issuer, cfg: cfg, log: log, metrics: m}
}

// Verify runs one attempt. Errors are, by kind:
//
//	ErrUnauthorized: bad key, nothing logged
//	*Rejection:      refused attempt (bad input, no permissions, no match, out of tolerance), logged as invalid
//	ErrSigning:      token signing failed, logged as error
//	ErrStorage:      storage failure or timeout; logged as error when the caller was known
//	ErrInternal:     a panic after identity resolution, logged as error
//
// A token is only returned once its valid audit entry is stored.
func (s *VerifyService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	start := time.Now()
	res, err := s.verify(ctx, req)
	s.metrics.ObserveVerification(outcomeLabel(err), start)
	return res, err
}

func (s *VerifyService) verify(ctx context.Context, req VerifyRequest) (res *VerifyResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	caller, err := s.repo.LookupCallerByKey(ctx, req.APIKey)
	if err != nil {
		s.log.Error("api key lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if caller == nil {
		return nil, ErrUnauthorized
	}

	base := models.Outcome{
		ClientID:  caller.ID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	// A panic past this point still leaves an error outcome behind.
	var probe fingerprint.Fingerprint
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("verification panicked", zap.Any("panic", r), zap.Stack("stack"))
			res, err = nil, s.fail(ctx, base, probe, ErrInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	probe, err = fingerprint.Extract(req.Points)
	if err != nil {
		return nil, s.reject(ctx, base, nil, &Rejection{Reason: err.Error(), Err: err})
	}

	stampIDs, err := s.repo.ListActivePermissions(ctx, caller.ID)
	if err != nil {
		return nil, s.fail(ctx, base, probe, ErrStorage, err)
	}
	if len(stampIDs) == 0 {
		return nil, s.reject(ctx, base, probe, &Rejection{Reason: ErrNoPermissions.Error(), Err: ErrNoPermissions})
	}

	stored, err := s.repo.GetFingerprints(ctx, stampIDs)
	if err != nil {
		return nil, s.fail(ctx, base, probe, ErrStorage, err)
	}

	candidates := make([]matcher.Candidate, 0, len(stampIDs))
	for _, id := range stampIDs {
		fp, ok := stored[id]
		if !ok {
			continue
		}
		candidates = append(candidates, matcher.Candidate{StampID: id, Fingerprint: fp})
	}

	match, err := matcher.Match(probe, candidates, s.cfg.Tolerance)
	switch {
	case errors.Is(err, matcher.ErrNoMatch), errors.Is(err, matcher.ErrToleranceExceeded):
		return nil, s.reject(ctx, base, probe, &Rejection{Reason: match.Reason, Err: err})
	case err != nil:
		// a stored fingerprint of the wrong dimension
		return nil, s.fail(ctx, base, probe, ErrStorage, err)
	}

	token, err := s.issuer.Issue(match.StampID, string(models.StatusValid), s.cfg.TokenTTL)
	if err != nil {
		return nil, s.fail(ctx, base, probe, ErrSigning, err)
	}

	valid := base
	valid.Status = models.StatusValid
	valid.StampID = match.StampID
	valid.Fingerprint = probe
	if err := s.repo.AppendAuditLog(ctx, valid); err != nil {
		s.metrics.IncrementAuditWriteFailures()
		s.log.Error("failed to append audit log, token withheld",
			zap.String("client_id", caller.ID), zap.String("stamp_id", match.StampID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.metrics.IncrementTokensIssued()

	return &VerifyResult{
		StampID:  match.StampID,
		Token:    token,
		MSE:      match.MSE,
		MaxError: match.MaxError,
	}, nil
}

// reject stores an invalid outcome and returns rej, or a storage error if the
// outcome could not be stored.
func (s *VerifyService) reject(ctx context.Context, o models.Outcome, probe fingerprint.Fingerprint, rej *Rejection) error {
	o.Status = models.StatusInvalid
	o.Fingerprint = probe
	o.Reason = rej.Reason
	if err := s.repo.AppendAuditLog(ctx, o); err != nil {
		s.metrics.IncrementAuditWriteFailures()
		s.log.Error("failed to append audit log", zap.String("client_id", o.ClientID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return rej
}

// fail records an error outcome on a best-effort basis and returns kind
// wrapping cause. The append runs on a fresh deadline since the request
// context may be the one that expired.
func (s *VerifyService) fail(ctx context.Context, o models.Outcome, probe fingerprint.Fingerprint, kind, cause error) error {
	err := fmt.Errorf("%w: %w", kind, cause)
	s.log.Error("verification failed", zap.String("client_id", o.ClientID), zap.Error(err))

	o.Status = models.StatusError
	o.Fingerprint = probe
	o.Reason = err.Error()

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StorageTimeout)
	defer cancel()
	if appendErr := s.repo.AppendAuditLog(logCtx, o); appendErr != nil {
		s.metrics.IncrementAuditWriteFailures()
		s.log.Warn("failed to append error outcome", zap.String("client_id", o.ClientID), zap.Error(appendErr))
	}
	return err
}

func outcomeLabel(err error) string {
	var rej *Rejection
	switch {
	case err == nil:
		return string(models.StatusValid)
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &rej):
		return string(models.StatusInvalid)
	default:
		return string(models.StatusError)
	}
}
