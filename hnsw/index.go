package hnsw

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/patrikhermansson/annex/core"
)

// seededRand is a global random number generator used for level generation.
var seededRand = rand.New(rand.NewSource(core.GetSeed()))
var seededRandMu sync.Mutex

// maxLevelCap is the upper bound for a node's level.
const maxLevelCap = 16

// Default construction parameters for callers without tuned values.
const (
	DefaultM              = 16
	DefaultEFConstruction = 200
)

// warmUpSize is the number of points inserted sequentially at the start of
// InsertBatch, before the parallel workers begin. Early parallel inserts
// would race to become the top-level entry point with no stable graph to
// attach to; the sequential core settles the upper layers first.
const warmUpSize = 500

// HNSWIndex is a Hierarchical Navigable Small World graph over float32
// vectors with squared L2 distance. Inserts and searches may run
// concurrently from any number of goroutines.
type HNSWIndex struct {
	mu         sync.RWMutex // guards store appends and the entryPoint/maxLevel pair
	dimension  int          // dimension of the vectors
	m          int          // maximum number of neighbors per node on levels >= 1
	mMax0      int          // maximum number of neighbors per node on level 0
	efc        int          // breadth of layer searches during construction
	entryPoint int          // id of the search entry node, -1 while empty
	maxLevel   int          // current maximum level in the graph, -1 while empty

	store    *nodeStore
	distance core.DistanceFunc

	visitedPool sync.Pool
}

// NewHNSW creates a new HNSW index given the dimension, the per-level
// neighbor cap M, and the construction breadth efConstruction. Level 0 admits
// 2*M neighbors per node.
func NewHNSW(dimension, m, efConstruction int) (*HNSWIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if m <= 0 {
		return nil, fmt.Errorf("M must be positive, got %d", m)
	}
	if efConstruction <= 0 {
		return nil, fmt.Errorf("efConstruction must be positive, got %d", efConstruction)
	}
	log.Info().Msgf("Creating new HNSW index with dimension=%d, M=%d, efConstruction=%d",
		dimension, m, efConstruction)
	h := &HNSWIndex{
		dimension:  dimension,
		m:          m,
		mMax0:      2 * m,
		efc:        efConstruction,
		entryPoint: -1,
		maxLevel:   -1,
		store:      newNodeStore(),
		distance:   core.SquaredL2,
	}
	h.visitedPool = sync.Pool{
		New: func() any { return new(visitedSet) },
	}
	return h, nil
}

// randomLevel draws a node level: the number of successes in a run of
// Bernoulli(0.5) trials before the first failure, capped at maxLevelCap.
func randomLevel(rng *rand.Rand) int {
	level := 0
	for rng.Float32() < 0.5 && level < maxLevelCap {
		level++
	}
	return level
}

// Insert adds a vector to the index and returns its assigned id.
func (h *HNSWIndex) Insert(vector []float32) (int, error) {
	seededRandMu.Lock()
	level := randomLevel(seededRand)
	seededRandMu.Unlock()
	return h.insert(vector, level)
}

// insert registers the vector as a node with the given level and links it
// into the graph.
func (h *HNSWIndex) insert(vector []float32, level int) (int, error) {
	if len(vector) != h.dimension {
		return 0, fmt.Errorf("vector dimension %d does not match index dimension %d",
			len(vector), h.dimension)
	}

	n := newNode(vector, level)

	// Register the node and snapshot the peak under the global write lock.
	h.mu.Lock()
	id, err := h.store.append(n)
	if err != nil {
		h.mu.Unlock()
		return 0, err
	}
	ep := h.entryPoint
	maxL := h.maxLevel
	if ep == -1 {
		h.entryPoint = id
		h.maxLevel = level
		h.mu.Unlock()
		return id, nil
	}
	h.mu.Unlock()

	// Greedy descent through the layers above the new node's level.
	for l := maxL; l > level; l-- {
		if res := h.searchLayer(vector, ep, l, 1); len(res) > 0 {
			ep = res[0].id
		}
	}

	// Connect the node on each of its layers.
	for l := min(level, maxL); l >= 0; l-- {
		cands := h.searchLayer(vector, ep, l, h.efc)

		// The new node is not reachable through this level yet, so its own
		// list needs no lock.
		ids := make([]int, len(cands))
		for i, c := range cands {
			ids[i] = c.id
		}
		n.neighbors[l] = h.pruneNeighbors(n, ids)

		// Link each chosen neighbor back to the new node, restoring its cap
		// if the back-link pushed the list over.
		capacity := h.m
		if l == 0 {
			capacity = h.mMax0
		}
		for _, nb := range n.neighbors[l] {
			nbNode := h.store.get(nb)
			nbNode.mu.Lock()
			nbNode.neighbors[l] = append(nbNode.neighbors[l], id)
			if len(nbNode.neighbors[l]) > capacity {
				nbNode.neighbors[l] = h.pruneNeighbors(nbNode, nbNode.neighbors[l])
			}
			nbNode.mu.Unlock()
		}

		if len(cands) > 0 {
			ep = cands[0].id
		}
	}

	// Promote the entry point if the new node rose above the current peak.
	if level > maxL {
		h.mu.Lock()
		if level > h.maxLevel {
			h.maxLevel = level
			h.entryPoint = id
		}
		h.mu.Unlock()
	}

	return id, nil
}

// InsertBatch adds many vectors using numWorkers goroutines. The first
// warmUpSize vectors are inserted sequentially to stabilize the top layers;
// the remainder is distributed to workers through a shared counter.
func (h *HNSWIndex) InsertBatch(vectors [][]float32, numWorkers int) error {
	for i, v := range vectors {
		if len(v) != h.dimension {
			return fmt.Errorf("vector %d dimension %d does not match index dimension %d",
				i, len(v), h.dimension)
		}
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	warmUp := min(len(vectors), warmUpSize)
	for i := 0; i < warmUp; i++ {
		if _, err := h.Insert(vectors[i]); err != nil {
			return err
		}
	}
	if warmUp == len(vectors) {
		return nil
	}

	log.Debug().Msgf("Batch insert: %d points warmed up, %d workers for the remaining %d",
		warmUp, numWorkers, len(vectors)-warmUp)

	var next atomic.Int64
	next.Store(int64(warmUp))

	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		// Each worker draws levels from its own stream.
		seededRandMu.Lock()
		workerSeed := seededRand.Int63()
		seededRandMu.Unlock()

		g.Go(func() error {
			rng := rand.New(rand.NewSource(workerSeed))
			for {
				idx := int(next.Add(1)) - 1
				if idx >= len(vectors) {
					return nil
				}
				if _, err := h.insert(vectors[idx], randomLevel(rng)); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// searchLayer performs a best-first bounded search on one layer, returning
// up to ef candidates ordered from closest to farthest.
func (h *HNSWIndex) searchLayer(query []float32, entry, level, ef int) []candidate {
	visited := h.visitedPool.Get().(*visitedSet)
	visited.prepare(h.store.len())
	defer h.visitedPool.Put(visited)

	d0 := h.distance(query, h.store.get(entry).vector)
	candQueue := candidateMinHeap{{entry, d0}}
	heap.Init(&candQueue)
	resultQueue := candidateMaxHeap{{entry, d0}}
	heap.Init(&resultQueue)
	visited.visit(entry)

	var nbs []int
	for candQueue.Len() > 0 {
		current := candQueue[0]
		if resultQueue.Len() >= ef && current.dist > resultQueue[0].dist {
			break
		}
		heap.Pop(&candQueue)

		// Copy the neighbor list out under the node's read lock so the lock
		// is not held across distance computations.
		node := h.store.get(current.id)
		node.mu.RLock()
		if level < len(node.neighbors) {
			nbs = append(nbs[:0], node.neighbors[level]...)
		} else {
			nbs = nbs[:0]
		}
		node.mu.RUnlock()

		for _, nb := range nbs {
			if visited.visited(nb) {
				continue
			}
			visited.visit(nb)
			d := h.distance(query, h.store.get(nb).vector)
			if resultQueue.Len() < ef || d < resultQueue[0].dist {
				newCand := candidate{nb, d}
				heap.Push(&candQueue, newCand)
				heap.Push(&resultQueue, newCand)
				if resultQueue.Len() > ef {
					heap.Pop(&resultQueue)
				}
			}
		}
	}

	// Drain the max-heap from the back to produce ascending order.
	results := make([]candidate, resultQueue.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(&resultQueue).(candidate)
	}
	return results
}

// pruneNeighbors reduces a candidate list to at most M diverse neighbors of
// base: candidates are taken closest first and rejected when some already
// selected neighbor is strictly closer to them than base is. Lists shorter
// than M are returned unchanged.
func (h *HNSWIndex) pruneNeighbors(base *Node, neighbors []int) []int {
	if len(neighbors) < h.m {
		return neighbors
	}

	scored := make([]candidate, len(neighbors))
	for i, nb := range neighbors {
		scored[i] = candidate{nb, h.distance(base.vector, h.store.get(nb).vector)}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].dist == scored[j].dist {
			return scored[i].id < scored[j].id
		}
		return scored[i].dist < scored[j].dist
	})

	selected := make([]int, 0, h.m)
	for _, c := range scored {
		good := true
		cv := h.store.get(c.id).vector
		for _, s := range selected {
			if h.distance(cv, h.store.get(s).vector) < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c.id)
			if len(selected) == h.m {
				break
			}
		}
	}
	return selected
}

// Search finds the k approximate nearest neighbors of a query vector using
// the default search breadth.
func (h *HNSWIndex) Search(query []float32, k int) ([]core.Neighbor, error) {
	return h.SearchWithEF(query, k, 0)
}

// SearchWithEF finds the k approximate nearest neighbors of a query vector.
// efSearch bounds the breadth of the base-layer search; values <= 0 fall
// back to max(efConstruction, k). Fewer than k neighbors are returned if the
// index holds fewer than k points.
func (h *HNSWIndex) SearchWithEF(query []float32, k, efSearch int) ([]core.Neighbor, error) {
	if len(query) != h.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(query), h.dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// Snapshot the peak as a consistent pair.
	h.mu.RLock()
	ep := h.entryPoint
	maxL := h.maxLevel
	h.mu.RUnlock()
	if ep == -1 {
		return nil, nil
	}

	ef := efSearch
	if ef <= 0 {
		ef = max(h.efc, k)
	}

	// Greedy descent to the base layer.
	for l := maxL; l > 0; l-- {
		if res := h.searchLayer(query, ep, l, 1); len(res) > 0 {
			ep = res[0].id
		}
	}

	cands := h.searchLayer(query, ep, 0, ef)
	if len(cands) > k {
		cands = cands[:k]
	}
	results := make([]core.Neighbor, len(cands))
	for i, c := range cands {
		results[i] = core.Neighbor{ID: c.id, Distance: c.dist}
	}
	return results, nil
}

// Stats returns simple statistics about the index.
func (h *HNSWIndex) Stats() core.IndexStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return core.IndexStats{
		Count:      h.store.len(),
		Dimension:  h.dimension,
		MaxLevel:   h.maxLevel,
		EntryPoint: h.entryPoint,
	}
}

// Check interface compliance at compile time.
var _ core.Index = (*HNSWIndex)(nil)
