package fingerprint

import (
	"fmt"
	"math"
)

// MeanSquaredError returns the average squared difference of a and b,
// compared position by position (by rank, since both are sorted).
func MeanSquaredError(a, b Fingerprint) (float64, error) {
	if err := sameLength(a, b); err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a)), nil
}

// MaxAbsoluteError returns the largest absolute per-position difference of a and b.
func MaxAbsoluteError(a, b Fingerprint) (float64, error) {
	if err := sameLength(a, b); err != nil {
		return 0, err
	}

	var maxErr float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > maxErr {
			maxErr = d
		}
	}
	return maxErr, nil
}

func sameLength(a, b Fingerprint) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	return nil
}
