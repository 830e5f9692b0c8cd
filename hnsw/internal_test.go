package hnsw

import (
	"math/rand"
	"testing"
)

func TestRandomLevelCapped(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	levels := make(map[int]int)
	for i := 0; i < 200000; i++ {
		l := randomLevel(rng)
		if l < 0 || l > maxLevelCap {
			t.Fatalf("randomLevel returned %d; want within [0, %d]", l, maxLevelCap)
		}
		levels[l]++
	}
	// Bernoulli(0.5): about half the draws land on level 0, a quarter on
	// level 1, and so on.
	if frac := float64(levels[0]) / 200000; frac < 0.45 || frac > 0.55 {
		t.Errorf("level 0 frequency %.3f; want about 0.5", frac)
	}
	if frac := float64(levels[1]) / 200000; frac < 0.20 || frac > 0.30 {
		t.Errorf("level 1 frequency %.3f; want about 0.25", frac)
	}
}

func TestVisitedSetGenerations(t *testing.T) {
	v := new(visitedSet)
	v.prepare(100)

	v.visit(3)
	v.visit(99)
	if !v.visited(3) || !v.visited(99) {
		t.Fatal("marks from the current generation must be visible")
	}
	if v.visited(4) {
		t.Fatal("unmarked id reported as visited")
	}

	// A new generation invalidates old marks without clearing.
	v.prepare(100)
	if v.visited(3) || v.visited(99) {
		t.Fatal("marks must not survive into the next generation")
	}

	// Growing mid-traversal keeps existing marks.
	v.visit(5)
	v.visit(20000)
	if !v.visited(5) || !v.visited(20000) {
		t.Fatal("marks lost while growing")
	}
}

func TestVisitedSetWraparound(t *testing.T) {
	v := new(visitedSet)
	v.prepare(10)
	v.visit(7)

	// Force the version counter to wrap; the set must reset cleanly.
	v.version = ^uint32(0)
	v.prepare(10)
	if v.version != 1 {
		t.Fatalf("version after wraparound = %d; want 1", v.version)
	}
	if v.visited(7) {
		t.Fatal("stale mark visible after wraparound reset")
	}
	v.visit(2)
	if !v.visited(2) {
		t.Fatal("marks must work after wraparound reset")
	}
}

func TestNodeStoreStableHandles(t *testing.T) {
	s := newNodeStore()
	first, err := s.append(newNode([]float32{1}, 0))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	handle := s.get(first)

	// Push the store through several segment growths.
	for i := 0; i < 3*nodeSegmentSize; i++ {
		if _, err := s.append(newNode([]float32{float32(i)}, 0)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	if s.get(first) != handle {
		t.Fatal("node handle changed across store growth")
	}
	if s.len() != 3*nodeSegmentSize+1 {
		t.Fatalf("store length %d; want %d", s.len(), 3*nodeSegmentSize+1)
	}
}

func TestPruneNeighborsDiversity(t *testing.T) {
	h, err := NewHNSW(2, 2, 10)
	if err != nil {
		t.Fatalf("NewHNSW failed: %v", err)
	}

	// Base at the origin; two candidates stacked behind each other on the
	// x-axis and one off on the y-axis. The second x candidate is closer to
	// the first than to the base, so diversity pruning must skip it.
	ids := make([]int, 0, 4)
	for _, v := range [][]float32{{0, 0}, {1, 0}, {2, 0}, {0, 3}} {
		id, err := h.Insert(v)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, id)
	}

	base := h.store.get(ids[0])
	selected := h.pruneNeighbors(base, []int{ids[1], ids[2], ids[3]})
	if len(selected) != 2 {
		t.Fatalf("pruneNeighbors selected %v; want 2 ids", selected)
	}
	if selected[0] != ids[1] || selected[1] != ids[3] {
		t.Errorf("pruneNeighbors selected %v; want [%d %d] (occluded candidate dropped)",
			selected, ids[1], ids[3])
	}

	// Below the cap the list passes through untouched.
	short := []int{ids[2]}
	if got := h.pruneNeighbors(base, short); len(got) != 1 || got[0] != ids[2] {
		t.Errorf("pruneNeighbors(%v) = %v; want unchanged", short, got)
	}
}

// TestForcedTopLevelInsert drives inserts with pinned levels through the
// internal entry point to exercise the level cap boundary.
func TestForcedTopLevelInsert(t *testing.T) {
	const dim = 4
	h, err := NewHNSW(dim, 4, 20)
	if err != nil {
		t.Fatalf("NewHNSW failed: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	vec := func() []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = rng.Float32()
		}
		return v
	}

	for i := 0; i < 50; i++ {
		if _, err := h.insert(vec(), i%5); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	// Two nodes at the cap: the second must link on layer 16 within the cap.
	if _, err := h.insert(vec(), maxLevelCap); err != nil {
		t.Fatalf("insert at level cap failed: %v", err)
	}
	top, err := h.insert(vec(), maxLevelCap)
	if err != nil {
		t.Fatalf("insert at level cap failed: %v", err)
	}

	stats := h.Stats()
	if stats.MaxLevel != maxLevelCap {
		t.Errorf("MaxLevel = %d; want %d", stats.MaxLevel, maxLevelCap)
	}
	nbs := h.Neighbors(top, maxLevelCap)
	if len(nbs) > h.m {
		t.Errorf("layer %d list has %d neighbors; cap is %d", maxLevelCap, len(nbs), h.m)
	}
	for _, nb := range nbs {
		if h.Level(nb) < maxLevelCap {
			t.Errorf("layer %d links to node %d with level %d", maxLevelCap, nb, h.Level(nb))
		}
	}
}
