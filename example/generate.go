package example

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"
)

// GenerateWellSeparatedCenters draws cluster centers uniformly from
// [-10, 10]^dim, rejecting candidates closer than minDist (in L2) to an
// already accepted center.
func GenerateWellSeparatedCenters(dim, clusters int, minDist float64, rng *rand.Rand) [][]float32 {
	centers := make([][]float32, 0, clusters)
	for len(centers) < clusters {
		candidate := make([]float32, dim)
		for i := range candidate {
			candidate[i] = rng.Float32()*20 - 10
		}

		tooClose := false
		for _, c := range centers {
			if math.Sqrt(float64(squaredL2(candidate, c))) < minDist {
				tooClose = true
				break
			}
		}
		if !tooClose {
			centers = append(centers, candidate)
		}
	}
	log.Debug().Msgf("Generated %d centers with min pairwise distance %.2f", clusters, minDist)
	return centers
}

// SampleNear returns a copy of center with Gaussian noise of the given
// standard deviation added to every coordinate.
func SampleNear(center []float32, sigma float64, rng *rand.Rand) []float32 {
	v := make([]float32, len(center))
	for i, x := range center {
		v[i] = x + float32(rng.NormFloat64()*sigma)
	}
	return v
}

// ClusterDataset holds a labeled synthetic dataset sampled around
// well-separated centers.
type ClusterDataset struct {
	Centers [][]float32
	Vectors [][]float32
	Labels  []int
}

// GenerateClusterDataset samples pointsPerCluster vectors around each of the
// given centers, recording the cluster label of every vector.
func GenerateClusterDataset(centers [][]float32, pointsPerCluster int, sigma float64, rng *rand.Rand) *ClusterDataset {
	ds := &ClusterDataset{
		Centers: centers,
		Vectors: make([][]float32, 0, len(centers)*pointsPerCluster),
		Labels:  make([]int, 0, len(centers)*pointsPerCluster),
	}
	for c, center := range centers {
		for i := 0; i < pointsPerCluster; i++ {
			ds.Vectors = append(ds.Vectors, SampleNear(center, sigma, rng))
			ds.Labels = append(ds.Labels, c)
		}
	}
	return ds
}
