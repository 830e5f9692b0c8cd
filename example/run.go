package example

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/patrikhermansson/annex/hnsw"
)

// Config collects the parameters of the synthetic cluster evaluations.
type Config struct {
	// index
	Dim            int
	M              int
	EfConstruction int

	// search
	K        int
	EfSearch int
	Queries  int // queries per cluster

	// clusters
	Clusters   int
	Points     int // points per cluster
	Sigma      float64
	CenterDist float64
	Seed       int64

	// execution
	Threads int

	// display
	ShowProgress bool
	Verbose      bool // print per-query predicted neighbors
}

// DefaultConfig mirrors the defaults of the CLI runner.
func DefaultConfig() Config {
	return Config{
		Dim:            128,
		M:              16,
		EfConstruction: 200,
		K:              15,
		EfSearch:       80,
		Queries:        30,
		Clusters:       6,
		Points:         200,
		Sigma:          0.004,
		CenterDist:     8.0,
		Seed:           42,
		Threads:        1,
		ShowProgress:   true,
	}
}

// buildIndex creates the index and inserts the dataset, sequentially or with
// a batch worker pool depending on cfg.Threads. It returns the build time.
func buildIndex(cfg Config, vectors [][]float32) (*hnsw.HNSWIndex, time.Duration, error) {
	index, err := hnsw.NewHNSW(cfg.Dim, cfg.M, cfg.EfConstruction)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if cfg.Threads <= 1 {
		var bar *progressbar.ProgressBar
		if cfg.ShowProgress {
			bar = progressbar.Default(int64(len(vectors)), "indexing")
		}
		for _, v := range vectors {
			if _, err := index.Insert(v); err != nil {
				return nil, 0, err
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	} else {
		if err := index.InsertBatch(vectors, cfg.Threads); err != nil {
			return nil, 0, err
		}
	}
	log.Debug().Msgf("Layer occupancy after build: %v", index.LevelCounts())
	return index, time.Since(start), nil
}

// RecallResult summarizes a run of the recall evaluation.
type RecallResult struct {
	Recall        float64
	Top1Accuracy  float64
	BuildTime     time.Duration
	AvgSearchTime time.Duration
}

// RunRecall builds an index over a synthetic cluster dataset and measures
// recall@k and top-1 agreement against the exact-KNN oracle.
func RunRecall(cfg Config) (*RecallResult, error) {
	fmt.Println("[UT] HNSW vs Exact KNN (L2)")

	rng := rand.New(rand.NewSource(cfg.Seed))
	centers := GenerateWellSeparatedCenters(cfg.Dim, cfg.Clusters, cfg.CenterDist, rng)
	ds := GenerateClusterDataset(centers, cfg.Points, cfg.Sigma, rng)
	log.Info().Msgf("Generated %d vectors in %d clusters", len(ds.Vectors), cfg.Clusters)

	if cfg.Threads > 1 {
		fmt.Printf("Starting parallel index build with %d threads...\n", cfg.Threads)
	} else {
		fmt.Println("Starting single-threaded index build...")
	}
	index, buildTime, err := buildIndex(cfg, ds.Vectors)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[TIME] Total index insert: %.3f sec\n", buildTime.Seconds())

	// Queries come from the same generator stream as the dataset.
	queries := make([][]float32, 0, cfg.Clusters*cfg.Queries)
	for c := 0; c < cfg.Clusters; c++ {
		for q := 0; q < cfg.Queries; q++ {
			queries = append(queries, SampleNear(centers[c], cfg.Sigma, rng))
		}
	}

	var bar *progressbar.ProgressBar
	if cfg.ShowProgress {
		bar = progressbar.Default(int64(len(queries)), "querying")
	}

	var avgRecall float64
	top1Correct := 0
	var searchTotal time.Duration
	for i, query := range queries {
		exact := ExactKNN(ds.Vectors, query, cfg.K)

		t0 := time.Now()
		approx, err := index.SearchWithEF(query, cfg.K, cfg.EfSearch)
		if err != nil {
			return nil, err
		}
		searchTotal += time.Since(t0)

		if cfg.Verbose {
			fmt.Printf("Query #%d:\n", i+1)
			fmt.Printf(" -> Predicted:    %s\n", FormatResults(approx, cfg.K))
			fmt.Printf(" -> Ground-truth: %v\n", exact)
		}

		avgRecall += RecallAtK(approx, exact, cfg.K)
		if len(approx) > 0 && len(exact) > 0 && approx[0].ID == exact[0] {
			top1Correct++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	res := &RecallResult{
		Recall:        avgRecall / float64(len(queries)),
		Top1Accuracy:  float64(top1Correct) / float64(len(queries)),
		BuildTime:     buildTime,
		AvgSearchTime: searchTotal / time.Duration(len(queries)),
	}

	fmt.Printf("Top-1 accuracy: %.4f\n", res.Top1Accuracy)
	fmt.Printf("Recall@%d: %.4f\n", cfg.K, res.Recall)
	fmt.Printf("[TIME] Avg search per query: %.6f sec\n", res.AvgSearchTime.Seconds())
	if res.Recall <= 0.95 {
		fmt.Printf("[FAIL] Recall is too low: %.4f\n", res.Recall)
	} else {
		fmt.Println("[PASS] Exact KNN validation")
	}
	return res, nil
}

// PrecisionResult summarizes a run of the per-cluster precision evaluation.
type PrecisionResult struct {
	Confusion     *ConfusionMatrix
	Top1Purity    float64
	BuildTime     time.Duration
	AvgSearchTime time.Duration
}

// RunPrecision builds an index over a synthetic cluster dataset, predicts
// each query's cluster by majority vote over its k neighbors, and reports
// the column-normalized confusion matrix.
func RunPrecision(cfg Config) (*PrecisionResult, error) {
	fmt.Println("[UT] HNSW per-cluster precision + confusion matrix")

	rng := rand.New(rand.NewSource(cfg.Seed))
	centers := GenerateWellSeparatedCenters(cfg.Dim, cfg.Clusters, cfg.CenterDist, rng)
	ds := GenerateClusterDataset(centers, cfg.Points, cfg.Sigma, rng)

	index, buildTime, err := buildIndex(cfg, ds.Vectors)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[TIME] Total index insert: %.3f sec\n", buildTime.Seconds())

	confusion := NewConfusionMatrix(cfg.Clusters)
	correct := 0
	totalQueries := 0
	var searchTotal time.Duration

	var bar *progressbar.ProgressBar
	if cfg.ShowProgress {
		bar = progressbar.Default(int64(cfg.Clusters*cfg.Queries), "querying")
	}
	for trueC := 0; trueC < cfg.Clusters; trueC++ {
		for q := 0; q < cfg.Queries; q++ {
			query := SampleNear(centers[trueC], cfg.Sigma, rng)

			t0 := time.Now()
			knn, err := index.SearchWithEF(query, cfg.K, cfg.EfSearch)
			if err != nil {
				return nil, err
			}
			searchTotal += time.Since(t0)

			labels := make([]int, len(knn))
			for i, n := range knn {
				labels[i] = ds.Labels[n.ID]
			}
			pred := MajorityVote(labels, cfg.Clusters)
			confusion.Record(pred, trueC)
			if pred == trueC {
				correct++
			}
			totalQueries++
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}

	res := &PrecisionResult{
		Confusion:     confusion,
		Top1Purity:    float64(correct) / float64(totalQueries),
		BuildTime:     buildTime,
		AvgSearchTime: searchTotal / time.Duration(totalQueries),
	}

	fmt.Printf("[TIME] Avg search per query: %.6f sec\n", res.AvgSearchTime.Seconds())
	fmt.Println()
	fmt.Println(confusion.String())
	fmt.Printf("[UT2] Recall: %.4f\n", confusion.Recall())
	return res, nil
}
