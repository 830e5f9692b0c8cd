package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/annex/example"
)

// Execute parses the command line and runs the selected evaluation suites.
func Execute() {
	defaults := example.DefaultConfig()

	dim := flag.Int("dim", defaults.Dim, "vector dimension")
	m := flag.Int("m", defaults.M, "max neighbors per node on levels >= 1")
	efc := flag.Int("efc", defaults.EfConstruction, "construction search breadth")
	k := flag.Int("k", defaults.K, "neighbors per query")
	efs := flag.Int("efs", defaults.EfSearch, "query search breadth")
	queries := flag.Int("queries", defaults.Queries, "queries per cluster")
	clusters := flag.Int("clusters", defaults.Clusters, "number of clusters")
	pts := flag.Int("pts", defaults.Points, "points per cluster")
	sigma := flag.Float64("sigma", defaults.Sigma, "cluster noise standard deviation")
	centerDist := flag.Float64("center-dist", defaults.CenterDist, "minimum distance between cluster centers")
	seed := flag.Int64("seed", defaults.Seed, "dataset generator seed")
	threads := flag.Int("threads", defaults.Threads, "worker threads for the index build (1 = sequential)")
	ut1 := flag.Bool("ut1", false, "run the recall evaluation against exact KNN")
	ut2 := flag.Bool("ut2", false, "run the per-cluster precision evaluation")
	verbose := flag.Bool("verbose", false, "print per-query predicted neighbors")
	flag.Parse()

	if !*ut1 && !*ut2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -ut1 | -ut2\n\n", os.Args[0])
		flag.PrintDefaults()
		return
	}

	cfg := example.Config{
		Dim:            *dim,
		M:              *m,
		EfConstruction: *efc,
		K:              *k,
		EfSearch:       *efs,
		Queries:        *queries,
		Clusters:       *clusters,
		Points:         *pts,
		Sigma:          *sigma,
		CenterDist:     *centerDist,
		Seed:           *seed,
		Threads:        *threads,
		ShowProgress:   true,
		Verbose:        *verbose,
	}

	if *ut1 {
		if _, err := example.RunRecall(cfg); err != nil {
			log.Fatal().Err(err).Msg("Recall evaluation failed")
		}
	}
	if *ut2 {
		if _, err := example.RunPrecision(cfg); err != nil {
			log.Fatal().Err(err).Msg("Precision evaluation failed")
		}
	}
}
