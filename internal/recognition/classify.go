// Package recognition implements identity matching over face encodings.
package recognition

import (
	"fmt"
	"math"
)

// Candidate is one enrolled gallery entry. Callers must supply a stable
// gallery ordering; ties at the minimum distance go to the first occurrence.
type Candidate struct {
	ID       int64
	Name     string
	Encoding []float32
}

// Match is the result of classifying a probe against the gallery.
type Match struct {
	ID       int64
	Name     string
	Distance float64
}

// EuclideanDistance computes the Euclidean distance between two encodings.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Classify finds the enrolled identity closest to the probe encoding.
// It returns nil when the gallery is empty or no entry is strictly below
// the threshold. A probe whose dimensionality does not match a gallery
// encoding is a caller error, never silently coerced.
//
// Classify is a pure function: identical inputs always yield identical
// output.
func Classify(probe []float32, gallery []Candidate, threshold float64) (*Match, error) {
	if len(probe) == 0 {
		return nil, fmt.Errorf("empty probe encoding")
	}

	var best *Match
	for i := range gallery {
		c := &gallery[i]
		if len(c.Encoding) != len(probe) {
			return nil, fmt.Errorf("encoding dimension mismatch: probe has %d, gallery entry %q has %d",
				len(probe), c.Name, len(c.Encoding))
		}
		d := EuclideanDistance(probe, c.Encoding)
		if best == nil || d < best.Distance {
			best = &Match{ID: c.ID, Name: c.Name, Distance: d}
		}
	}

	if best == nil || best.Distance >= threshold {
		return nil, nil
	}
	return best, nil
}
