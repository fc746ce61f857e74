// Package matcher selects the enrolled stamp closest to a probe fingerprint
// and decides whether it is close enough to count as a match.
package matcher

import (
	"errors"
	"fmt"
	"math"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
)

var (
	// ErrNoMatch means there was no usable candidate to compare against.
	ErrNoMatch = errors.New("no matching stamp found")
	// ErrToleranceExceeded means the closest candidate is still out of tolerance.
	ErrToleranceExceeded = errors.New("fingerprint out of tolerance")
)

// Candidate is an enrolled stamp the caller may be matched against.
type Candidate struct {
	StampID     string
	Fingerprint fingerprint.Fingerprint
}

// Tolerance holds the two thresholds a match must stay strictly below.
// Both are required: MSE bounds the aggregate deviation, MaxError bounds the
// worst single position so one wild value cannot hide behind four good ones.
type Tolerance struct {
	MSE      float64
	MaxError float64
}

// Result describes the outcome of a Match call.
// StampID, MSE and MaxError refer to the closest candidate, if any.
type Result struct {
	Accepted bool
	StampID  string
	MSE      float64
	MaxError float64
	Reason   string
}

// Match scans candidates in order and keeps the one with the lowest MSE;
// on equal MSE the first one seen wins. Candidates without a stored
// fingerprint are skipped.
//
// A rejected match is reported both in the Result and as an error wrapping
// ErrNoMatch or ErrToleranceExceeded. Any other error (a stored fingerprint
// of the wrong dimension) means the decision could not be made.
func Match(probe fingerprint.Fingerprint, candidates []Candidate, tol Tolerance) (Result, error) {
	var (
		best *Candidate
		res  = Result{MSE: math.Inf(1), MaxError: math.Inf(1)}
	)

	for i := range candidates {
		c := &candidates[i]
		if len(c.Fingerprint) == 0 {
			continue
		}

		mse, err := fingerprint.MeanSquaredError(probe, c.Fingerprint)
		if err != nil {
			return Result{}, fmt.Errorf("stamp %s: %w", c.StampID, err)
		}
		maxErr, err := fingerprint.MaxAbsoluteError(probe, c.Fingerprint)
		if err != nil {
			return Result{}, fmt.Errorf("stamp %s: %w", c.StampID, err)
		}

		if mse < res.MSE {
			best = c
			res.MSE = mse
			res.MaxError = maxErr
		}
	}

	if best == nil {
		res.Reason = ErrNoMatch.Error()
		return res, ErrNoMatch
	}

	res.StampID = best.StampID
	if res.MSE < tol.MSE && res.MaxError < tol.MaxError {
		res.Accepted = true
		return res, nil
	}

	res.Reason = fmt.Sprintf(
		"fingerprint mismatch (MSE: %.6f, max error: %.6f, MSE tolerance: %g, max error tolerance: %g)",
		res.MSE, res.MaxError, tol.MSE, tol.MaxError,
	)
	return res, fmt.Errorf("%w: %s", ErrToleranceExceeded, res.Reason)
}
