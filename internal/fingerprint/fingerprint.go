// Package fingerprint converts five stamp touch points into a scale-invariant
// geometric fingerprint and compares fingerprints with each other.
//
// A fingerprint is the sorted vector of distances from every point to the
// centroid of all points, divided by the largest of those distances. It does
// not change under translation, rotation, uniform scaling or relabeling of the
// points. Reflections and non-uniform distortion produce the same fingerprint
// as the original shape and are therefore not detected.
package fingerprint

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Size is the number of touch points (and fingerprint components) of a stamp.
const Size = 5

var (
	// ErrInvalidInput is returned when the input does not hold exactly Size
	// finite points.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDimensionMismatch is returned when two fingerprints have different lengths.
	ErrDimensionMismatch = errors.New("fingerprint dimension mismatch")
)

// Point is a single touch coordinate. No unit is implied.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Fingerprint is a sorted vector of normalized centroid distances.
// Values produced by Extract are always in [0, 1] and sorted ascending.
type Fingerprint []float64

// Extract computes the fingerprint of exactly Size points.
func Extract(points []Point) (Fingerprint, error) {
	if len(points) != Size {
		return nil, fmt.Errorf("%w: expected %d points, got %d", ErrInvalidInput, Size, len(points))
	}

	var maxAbs float64
	for _, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			return nil, fmt.Errorf("%w: coordinates must be finite", ErrInvalidInput)
		}
		maxAbs = max(maxAbs, math.Abs(p.X), math.Abs(p.Y))
	}

	// Scale into [-1, 1] by a power of two so the centroid sum and the
	// distances stay finite near math.MaxFloat64.
	_, exp := math.Frexp(maxAbs)
	if exp < 0 {
		exp = 0
	}
	scaled := make([]Point, len(points))
	var cx, cy float64
	for i, p := range points {
		scaled[i] = Point{X: math.Ldexp(p.X, -exp), Y: math.Ldexp(p.Y, -exp)}
		cx += scaled[i].X
		cy += scaled[i].Y
	}
	n := float64(len(points))
	cx /= n
	cy /= n

	distances := make(Fingerprint, len(points))
	var maxDist float64
	for i, p := range scaled {
		d := math.Hypot(p.X-cx, p.Y-cy)
		distances[i] = d
		if d > maxDist {
			maxDist = d
		}
	}

	// all points coincide
	if maxDist == 0 {
		return make(Fingerprint, Size), nil
	}

	for i := range distances {
		distances[i] /= maxDist
	}
	slices.Sort(distances)

	return distances, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clone returns a copy that does not share storage with f.
func (f Fingerprint) Clone() Fingerprint {
	if f == nil {
		return nil
	}
	return slices.Clone(f)
}
