package core

import (
	"sync"

	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/gonum"
)

// DistanceFunc computes the distance between two vectors.
// a: the first vector.
// b: the second vector.
// Returns the computed distance as a float32.
type DistanceFunc func(a, b []float32) float32

// squaredL2Impl is the kernel selected at startup; SquaredL2 dispatches to it.
var squaredL2Impl DistanceFunc = SquaredL2Lanes

// init selects the squared-L2 kernel based on available CPU features.
// The BLAS kernel relies on gonum's SIMD-accelerated inner loops, which pay
// off on CPUs with AVX2; everywhere else the unrolled pure-Go kernel is used.
func init() {
	if cpuid.CPU.Has(cpuid.AVX2) {
		squaredL2Impl = SquaredL2BLAS
		log.Debug().Msg("Distance kernel: gonum BLAS (AVX2 detected)")
	} else {
		log.Debug().Msgf("Distance kernel: unrolled pure Go (CPU: %s)", cpuid.CPU.BrandName)
	}
}

// SquaredL2 computes the squared Euclidean (L2) distance between two vectors
// using the fastest kernel available on this CPU. The two vectors must have
// the same length; callers guarantee this by construction.
func SquaredL2(a, b []float32) float32 {
	return squaredL2Impl(a, b)
}

// SquaredL2Ref is the scalar reference implementation of the squared L2
// distance. The optimized kernels must agree with it up to float
// reassociation.
func SquaredL2Ref(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// SquaredL2Lanes computes the squared L2 distance four lanes at a time with
// independent accumulators and a scalar tail.
func SquaredL2Lanes(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	sum := s0 + s1 + s2 + s3
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// gonumEngine provides the BLAS level-1 routines used by SquaredL2BLAS.
var gonumEngine = gonum.Implementation{}

// diffWorkspace pools scratch slices for SquaredL2BLAS so the hot path does
// not allocate. 128 covers the common embedding dimension here; larger
// vectors grow the pooled slice on first use.
var diffWorkspace = sync.Pool{
	New: func() any {
		s := make([]float32, 128)
		return &s
	},
}

// SquaredL2BLAS computes the squared L2 distance as dot(a-b, a-b) using
// gonum's Saxpy and Sdot, whose inner loops are SIMD-accelerated.
func SquaredL2BLAS(a, b []float32) float32 {
	n := len(a)

	diffPtr := diffWorkspace.Get().(*[]float32)
	defer diffWorkspace.Put(diffPtr)
	if cap(*diffPtr) < n {
		*diffPtr = make([]float32, n)
	}
	diff := (*diffPtr)[:n]

	copy(diff, a)
	gonumEngine.Saxpy(n, -1, b, 1, diff, 1)
	return gonumEngine.Sdot(n, diff, 1, diff, 1)
}
