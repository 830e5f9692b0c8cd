package core

import (
	"math"
	"math/rand"
	"testing"
)

// almostEqual compares two floating-point values with a tolerance.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{
			name:     "Identical Vectors",
			a:        []float32{1, 2, 3, 4, 5, 6},
			b:        []float32{1, 2, 3, 4, 5, 6},
			expected: 0,
		},
		{
			name: "Opposite Order",
			a:    []float32{1, 2, 3, 4, 5, 6},
			b:    []float32{6, 5, 4, 3, 2, 1},
			// (5^2 + 3^2 + 1^2) * 2 = 70
			expected: 70,
		},
		{
			name:     "Binary Opposites",
			a:        []float32{1, 0, 0, 1, 0, 1},
			b:        []float32{0, 1, 1, 0, 1, 0},
			expected: 6,
		},
		{
			name:     "Tail Only",
			a:        []float32{2, 1, 4},
			b:        []float32{0, 1, 1},
			expected: 13,
		},
	}

	for _, tt := range tests {
		tt := tt // capture range variable
		t.Run(tt.name, func(t *testing.T) {
			for name, fn := range map[string]DistanceFunc{
				"dispatch": SquaredL2,
				"ref":      SquaredL2Ref,
				"lanes":    SquaredL2Lanes,
				"blas":     SquaredL2BLAS,
			} {
				got := fn(tt.a, tt.b)
				if !almostEqual(float64(got), tt.expected, 1e-6) {
					t.Errorf("%s(%v, %v) = %v; want %v", name, tt.a, tt.b, got, tt.expected)
				}
			}
		})
	}
}

func TestSquaredL2Symmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, dim := range []int{1, 3, 4, 7, 8, 128, 129} {
		a := make([]float32, dim)
		b := make([]float32, dim)
		for i := range a {
			a[i] = rng.Float32()
			b[i] = rng.Float32()
		}
		if SquaredL2(a, b) != SquaredL2(b, a) {
			t.Errorf("SquaredL2 not symmetric for dim %d", dim)
		}
		if SquaredL2(a, a) != 0 {
			t.Errorf("SquaredL2(a, a) = %v for dim %d; want 0", SquaredL2(a, a), dim)
		}
	}
}

// TestKernelAgreement verifies that all kernels compute the same value up to
// float reassociation, including tails that are not a multiple of four.
func TestKernelAgreement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, dim := range []int{1, 2, 3, 4, 5, 15, 16, 17, 64, 100, 128, 333} {
		a := make([]float32, dim)
		b := make([]float32, dim)
		for i := range a {
			a[i] = rng.Float32()*20 - 10
			b[i] = rng.Float32()*20 - 10
		}

		ref := float64(SquaredL2Ref(a, b))
		tol := 1e-4 * (ref + 1)
		if got := float64(SquaredL2Lanes(a, b)); !almostEqual(got, ref, tol) {
			t.Errorf("SquaredL2Lanes dim %d = %v; ref %v", dim, got, ref)
		}
		if got := float64(SquaredL2BLAS(a, b)); !almostEqual(got, ref, tol) {
			t.Errorf("SquaredL2BLAS dim %d = %v; ref %v", dim, got, ref)
		}
	}
}

func BenchmarkSquaredL2(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	x := make([]float32, 128)
	y := make([]float32, 128)
	for i := range x {
		x[i] = rng.Float32()
		y[i] = rng.Float32()
	}

	b.Run("dispatch", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			SquaredL2(x, y)
		}
	})
	b.Run("lanes", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			SquaredL2Lanes(x, y)
		}
	})
	b.Run("blas", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			SquaredL2BLAS(x, y)
		}
	})
}
