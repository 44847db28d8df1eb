package recognition

import (
	"math"
	"testing"
)

func enc(vals ...float32) []float32 {
	return vals
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", enc(1, 2, 3), enc(1, 2, 3), 0},
		{"unit apart", enc(0, 0), enc(1, 0), 1},
		{"pythagorean", enc(0, 0), enc(3, 4), 5},
		{"negative components", enc(-1, -1), enc(1, 1), 2 * math.Sqrt2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EuclideanDistance(tc.a, tc.b)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("EuclideanDistance(%v, %v) = %v; want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestClassify_EmptyGallery(t *testing.T) {
	match, err := Classify(enc(1, 2), nil, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match for empty gallery, got %+v", match)
	}
}

func TestClassify_ExactMatch(t *testing.T) {
	gallery := []Candidate{
		{ID: 1, Name: "alice", Encoding: enc(0.1, 0.2, 0.3)},
		{ID: 2, Name: "bob", Encoding: enc(0.9, 0.8, 0.7)},
	}

	match, err := Classify(enc(0.1, 0.2, 0.3), gallery, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Name != "alice" {
		t.Errorf("expected alice, got %q", match.Name)
	}
	if match.Distance != 0 {
		t.Errorf("expected distance 0, got %v", match.Distance)
	}
}

func TestClassify_ThresholdIsStrict(t *testing.T) {
	gallery := []Candidate{
		{ID: 1, Name: "alice", Encoding: enc(0, 0)},
	}

	// Probe at exactly the threshold distance must not match.
	match, err := Classify(enc(0.5, 0), gallery, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("distance equal to threshold must be unmatched, got %+v", match)
	}

	// Just inside the threshold matches.
	match, err = Classify(enc(0.49, 0), gallery, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Name != "alice" {
		t.Errorf("expected alice just inside threshold, got %+v", match)
	}
}

func TestClassify_TieBreaksByGalleryOrder(t *testing.T) {
	// Two entries at identical distance from the probe.
	gallery := []Candidate{
		{ID: 10, Name: "first", Encoding: enc(0.1, 0)},
		{ID: 20, Name: "second", Encoding: enc(-0.1, 0)},
	}

	match, err := Classify(enc(0, 0), gallery, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Name != "first" {
		t.Errorf("expected first occurrence to win the tie, got %+v", match)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	gallery := []Candidate{
		{ID: 1, Name: "alice", Encoding: enc(0.3, 0.1, 0.4)},
		{ID: 2, Name: "bob", Encoding: enc(0.2, 0.2, 0.2)},
		{ID: 3, Name: "carol", Encoding: enc(0.31, 0.1, 0.4)},
	}
	probe := enc(0.3, 0.11, 0.4)

	first, err := Classify(probe, gallery, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 100 {
		got, err := Classify(probe, gallery, 0.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || first == nil {
			t.Fatal("expected matches on every call")
		}
		if got.Name != first.Name || got.Distance != first.Distance {
			t.Fatalf("classification is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestClassify_DimensionMismatch(t *testing.T) {
	gallery := []Candidate{
		{ID: 1, Name: "alice", Encoding: enc(0.1, 0.2, 0.3)},
	}

	if _, err := Classify(enc(0.1, 0.2), gallery, 0.5); err == nil {
		t.Error("expected error for mismatched probe dimensionality")
	}
	if _, err := Classify(nil, gallery, 0.5); err == nil {
		t.Error("expected error for empty probe")
	}
}
