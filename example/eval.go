package example

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/patrikhermansson/annex/core"
)

// squaredL2 is the evaluation-side distance; it matches the index's metric.
var squaredL2 = core.SquaredL2

// ExactKNN returns the ids of the k exact nearest neighbors of query within
// data, closest first. It is the recall oracle for the approximate index.
func ExactKNN(data [][]float32, query []float32, k int) []int {
	type scored struct {
		dist float32
		id   int
	}
	all := make([]scored, len(data))
	for i, v := range data {
		all[i] = scored{squaredL2(query, v), i}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].id < all[j].id
		}
		return all[i].dist < all[j].dist
	})
	if len(all) > k {
		all = all[:k]
	}
	ids := make([]int, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids
}

// RecallAtK computes Recall@k as the fraction of all ground-truth items that appear in the top k predictions.
func RecallAtK(predicted []core.Neighbor, groundTruth []int, k int) float64 {
	if k <= 0 || len(groundTruth) == 0 {
		return 0.0
	}
	// Build a set of predicted IDs from the top k predictions.
	predSet := make(map[int]struct{})
	limit := k
	if len(predicted) < k {
		limit = len(predicted)
	}
	for i := 0; i < limit; i++ {
		predSet[predicted[i].ID] = struct{}{}
	}

	// Count ground-truth items that appear in the predictions.
	correct := 0
	for _, id := range groundTruth {
		if _, ok := predSet[id]; ok {
			correct++
		}
	}
	return float64(correct) / float64(len(groundTruth))
}

// MajorityVote returns the most frequent label among the given neighbor
// labels. Ties resolve to the smallest label.
func MajorityVote(labels []int, clusters int) int {
	counts := make([]int, clusters)
	for _, c := range labels {
		counts[c]++
	}
	best := 0
	for c, n := range counts {
		if n > counts[best] {
			best = c
		}
	}
	return best
}

// ConfusionMatrix accumulates predicted-vs-true cluster counts. Rows are
// predicted clusters, columns true clusters.
type ConfusionMatrix struct {
	counts *mat.Dense
}

// NewConfusionMatrix creates an empty clusters x clusters matrix.
func NewConfusionMatrix(clusters int) *ConfusionMatrix {
	return &ConfusionMatrix{counts: mat.NewDense(clusters, clusters, nil)}
}

// Record counts one query with the given predicted and true cluster.
func (cm *ConfusionMatrix) Record(predicted, actual int) {
	cm.counts.Set(predicted, actual, cm.counts.At(predicted, actual)+1)
}

// Normalized returns the matrix with each column scaled to sum to one.
// Columns with no observations stay zero.
func (cm *ConfusionMatrix) Normalized() *mat.Dense {
	rows, cols := cm.counts.Dims()
	norm := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		sum := mat.Sum(cm.counts.ColView(j))
		if sum == 0 {
			continue
		}
		for i := 0; i < rows; i++ {
			norm.Set(i, j, cm.counts.At(i, j)/sum)
		}
	}
	return norm
}

// Recall derives the micro-average recall: the diagonal mass over all
// recorded queries.
func (cm *ConfusionMatrix) Recall() float64 {
	rows, _ := cm.counts.Dims()
	var correct, total float64
	for i := 0; i < rows; i++ {
		correct += cm.counts.At(i, i)
	}
	total = mat.Sum(cm.counts)
	if total == 0 {
		return 0
	}
	return correct / total
}

// String renders the column-normalized matrix with labeled rows and columns.
func (cm *ConfusionMatrix) String() string {
	norm := cm.Normalized()
	rows, cols := norm.Dims()

	s := "Normalized confusion matrix (rows = predicted, cols = true)\n\n    "
	for j := 0; j < cols; j++ {
		s += fmt.Sprintf(" T%-4d", j)
	}
	s += "\n"
	for i := 0; i < rows; i++ {
		s += fmt.Sprintf("P%-2d ", i)
		for j := 0; j < cols; j++ {
			s += fmt.Sprintf("%5.2f ", norm.At(i, j))
		}
		s += "\n"
	}
	return s
}

// FormatResults returns a formatted string of neighbor results.
// maxResults specifies how many items to include.
func FormatResults(results []core.Neighbor, maxResults int) string {
	s := ""
	limit := maxResults
	if len(results) < limit {
		limit = len(results)
	}
	for i := 0; i < limit; i++ {
		n := results[i]
		s += fmt.Sprintf("id=%d (dist=%.3f) ", n.ID, n.Distance)
	}
	return s
}
