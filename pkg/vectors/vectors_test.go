package vectors

import (
	"math"
	"testing"
)

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}

	got := Dot(a, b)
	if got != 32 {
		t.Errorf("Dot() = %v, want 32", got)
	}
}

func TestDot_UnequalLengths(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{1, 1}

	if got := Dot(a, b); got != 3 {
		t.Errorf("Dot() over shorter prefix = %v, want 3", got)
	}
}

func TestNorm(t *testing.T) {
	v := []float32{3, 4}
	if got := Norm(v); got != 5 {
		t.Errorf("Norm() = %v, want 5", got)
	}

	if got := Norm(nil); got != 0 {
		t.Errorf("Norm(nil) = %v, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	unit := Normalize(v)

	if got := Norm(unit); math.Abs(got-1) > 1e-6 {
		t.Errorf("Norm(Normalize(v)) = %v, want 1", got)
	}

	// Original must not be mutated
	if v[0] != 3 || v[1] != 4 {
		t.Error("Normalize() mutated its input")
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	out := Normalize(v)

	if len(out) != 3 {
		t.Fatalf("Normalize() returned %d elements, want 3", len(out))
	}
	for i, x := range out {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, x)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_MatchesNormalizedDot(t *testing.T) {
	a := []float32{0.3, 1.7, 2.2, 0.01}
	b := []float32{1.1, 0.4, 0.9, 3.5}

	want := Cosine(a, b)
	got := Dot(Normalize(a), Normalize(b))
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Dot of normalized = %v, Cosine = %v", got, want)
	}
}
