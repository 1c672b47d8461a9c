// Package vectorindex implements C5: the approximate-nearest-neighbor
// vector index over item embeddings, backed by github.com/coder/hnsw.
package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"

	"github.com/kitsune-search/containerindex/internal/cerr"
)

// Tuning constants (§4.5).
const (
	GraphDegree            = 16
	ConstructionSearchDepth = 100
	OverflowFactor         = 1.2
	Alpha                  = 1.2
	FanoutMultiplier       = 10

	defaultLockRetry = 200 * time.Millisecond
)

// Result is one ranked hit, identified by the caller's db ordinal.
type Result struct {
	Ordinal  uint64
	Distance float32
	Score    float32
}

// Index is C5: a sparse ordinal -> vector map rebuilt into a contiguous
// HNSW graph on demand. Writers stage vectors under a write lock and set
// the dirty flag; Search rebuilds (also under a write lock) only when
// dirty, then serves under a read lock — grounded on the teacher's
// HNSWStore (internal/store/hnsw.go), generalized from string IDs to
// caller-supplied uint64 ordinals and from eager-insert to
// dirty-flag/rebuild semantics (§4.5).
type Index struct {
	logger *slog.Logger
	dim    int

	mu      sync.RWMutex
	vectors map[uint64][]float32 // db ordinal -> vector, the sparse source of truth
	graph   *hnsw.Graph[uint64]  // rebuilt from vectors; keys are internal ordinals
	intToDB map[uint64]uint64
	dbToInt map[uint64]uint64
	dirty   bool

	dir string
}

// persistedState is the gob-encoded payload of ordinals.map.
type persistedState struct {
	Vectors map[uint64][]float32
	Dim     int
}

// New constructs an empty index. dataDir, if non-empty, is where
// Save/Load persist ordinals.map under a cross-process flock (§4.5, §6).
func New(dim int, dataDir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		logger:  logger,
		dim:     dim,
		vectors: make(map[uint64][]float32),
		graph:   newGraph(),
		intToDB: make(map[uint64]uint64),
		dbToInt: make(map[uint64]uint64),
		dir:     dataDir,
	}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = GraphDegree
	g.EfSearch = ConstructionSearchDepth
	g.Ml = 0.25
	return g
}

// Put stages (or replaces) the vector for ordinal and marks the index
// dirty. The graph is not touched until the next Search/Rebuild (§4.5).
func (idx *Index) Put(ordinal uint64, v []float32) error {
	if len(v) != idx.dim {
		return cerr.New(cerr.CodeDimensionMismatch, fmt.Sprintf("expected dim %d, got %d", idx.dim, len(v)), nil)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cp := make([]float32, len(v))
	copy(cp, v)
	idx.vectors[ordinal] = cp
	idx.dirty = true
	return nil
}

// PutAll stages a batch of vectors.
func (idx *Index) PutAll(entries map[uint64][]float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for ordinal, v := range entries {
		if len(v) != idx.dim {
			return cerr.New(cerr.CodeDimensionMismatch, fmt.Sprintf("ordinal %d: expected dim %d, got %d", ordinal, idx.dim, len(v)), nil)
		}
	}
	for ordinal, v := range entries {
		cp := make([]float32, len(v))
		copy(cp, v)
		idx.vectors[ordinal] = cp
	}
	idx.dirty = true
	return nil
}

// Remove drops ordinal from the sparse map and marks the index dirty.
func (idx *Index) Remove(ordinal uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.vectors[ordinal]; ok {
		delete(idx.vectors, ordinal)
		idx.dirty = true
	}
}

// RemoveAll drops a batch of ordinals.
func (idx *Index) RemoveAll(ordinals []uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, o := range ordinals {
		if _, ok := idx.vectors[o]; ok {
			delete(idx.vectors, o)
			idx.dirty = true
		}
	}
}

// Len reports the number of live vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Get returns the staged vector for ordinal, if any (§4.5 "get(ordinal)
// -> option<vector>"). It reads the sparse source of truth directly, so
// it reflects pending Put/Remove calls even before the next rebuild.
func (idx *Index) Get(ordinal uint64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[ordinal]
	if !ok {
		return nil, false
	}
	cp := make([]float32, len(v))
	copy(cp, v)
	return cp, true
}

// rebuildLocked reassigns a contiguous internal key space over the
// current sparse vectors map (sorted by db ordinal for determinism) and
// reconstructs the HNSW graph from scratch. Caller must hold the write
// lock (§4.5: "dirty-flag rebuild under writer lock").
func (idx *Index) rebuildLocked() {
	ordinals := make([]uint64, 0, len(idx.vectors))
	for o := range idx.vectors {
		ordinals = append(ordinals, o)
	}
	sort.Slice(ordinals, func(i, j int) bool { return ordinals[i] < ordinals[j] })

	graph := newGraph()
	intToDB := make(map[uint64]uint64, len(ordinals))
	dbToInt := make(map[uint64]uint64, len(ordinals))

	for i, dbOrdinal := range ordinals {
		key := uint64(i)
		graph.Add(hnsw.MakeNode(key, idx.vectors[dbOrdinal]))
		intToDB[key] = dbOrdinal
		dbToInt[dbOrdinal] = key
	}

	idx.graph = graph
	idx.intToDB = intToDB
	idx.dbToInt = dbToInt
	idx.dirty = false

	idx.logger.Debug("vector index rebuilt", slog.Int("vectors", len(ordinals)))
}

// ensureFresh rebuilds the graph if dirty. It takes the write lock only
// when a rebuild is actually needed.
func (idx *Index) ensureFresh() {
	idx.mu.RLock()
	dirty := idx.dirty
	idx.mu.RUnlock()
	if !dirty {
		return
	}
	idx.mu.Lock()
	if idx.dirty {
		idx.rebuildLocked()
	}
	idx.mu.Unlock()
}

// Search returns the top-k nearest neighbors to query, with no
// filtering. It rebuilds the graph first if dirty, then runs under the
// read lock.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	return idx.SearchFiltered(ctx, query, k, nil)
}

// SearchFiltered runs the nearest-neighbor search with an optional keep
// predicate over db ordinals. When keep is non-nil the query fanout is
// widened to min(k*FanoutMultiplier, N) so that excluded or stale candidates
// (ordinals present in the graph but no longer valid, e.g. a row deleted
// between caches) can be filtered without starving the result set
// (§4.5).
func (idx *Index) SearchFiltered(ctx context.Context, query []float32, k int, keep func(ordinal uint64) bool) ([]Result, error) {
	if len(query) != idx.dim {
		return nil, cerr.New(cerr.CodeDimensionMismatch, fmt.Sprintf("expected dim %d, got %d", idx.dim, len(query)), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.ensureFresh()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := idx.graph.Len()
	if n == 0 {
		return nil, nil
	}

	fanout := k
	if keep != nil {
		fanout = k * FanoutMultiplier
		if fanout > n {
			fanout = n
		}
		if fanout < k {
			fanout = k
		}
	}

	nodes := idx.graph.Search(query, fanout)

	results := make([]Result, 0, k)
	for _, node := range nodes {
		dbOrdinal, ok := idx.intToDB[node.Key]
		if !ok {
			continue // stale internal key, shouldn't happen post-rebuild
		}
		if keep != nil && !keep(dbOrdinal) {
			continue
		}
		dist := idx.graph.Distance(query, node.Value)
		results = append(results, Result{
			Ordinal:  dbOrdinal,
			Distance: dist,
			Score:    cosineDistanceToScore(dist),
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func cosineDistanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}

// PurgeAll discards every staged vector and resets the graph.
func (idx *Index) PurgeAll() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = make(map[uint64][]float32)
	idx.graph = newGraph()
	idx.intToDB = make(map[uint64]uint64)
	idx.dbToInt = make(map[uint64]uint64)
	idx.dirty = false
}

func (idx *Index) ordinalsPath() string { return filepath.Join(idx.dir, "ordinals.map") }
func (idx *Index) lockPath() string     { return filepath.Join(idx.dir, ".vectorindex.lock") }

// Save persists the sparse vector map (ordinals.map) under a cross-process
// exclusive flock so a concurrent process cannot read a half-written file
// (§4.5, §6). The HNSW graph itself is not persisted: it is cheaply
// rebuildable from the sparse map on Load, and coder/hnsw's Graph exposes
// no way to recover a key->vector iterator from an Import-ed graph, so an
// exported graph could never actually be read back here.
func (idx *Index) Save(ctx context.Context) error {
	if idx.dir == "" {
		return nil
	}
	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return cerr.Wrap(cerr.CodeIndexPersistFailed, err)
	}

	fl := flock.New(idx.lockPath())
	locked, err := fl.TryLockContext(ctx, defaultLockRetry)
	if err != nil || !locked {
		return cerr.New(cerr.CodeIndexPersistFailed, "could not acquire cross-process index lock", err)
	}
	defer func() { _ = fl.Unlock() }()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.saveOrdinalsLocked(); err != nil {
		return cerr.Wrap(cerr.CodeIndexPersistFailed, err)
	}
	return nil
}

func (idx *Index) saveOrdinalsLocked() error {
	tmp := idx.ordinalsPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	state := persistedState{Vectors: idx.vectors, Dim: idx.dim}
	if err := gob.NewEncoder(f).Encode(state); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, idx.ordinalsPath())
}

// Load restores the sparse vector map from ordinals.map and rebuilds the
// graph from it. There is no separate graph file to read: rebuilding
// from the sparse map is cheap and guarantees the internal key space
// matches the loaded vectors.
func (idx *Index) Load(ctx context.Context) error {
	if idx.dir == "" {
		return nil
	}

	fl := flock.New(idx.lockPath())
	locked, err := fl.TryLockContext(ctx, defaultLockRetry)
	if err != nil || !locked {
		return cerr.New(cerr.CodeIndexPersistFailed, "could not acquire cross-process index lock", err)
	}
	defer func() { _ = fl.Unlock() }()

	f, err := os.Open(idx.ordinalsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cerr.Wrap(cerr.CodeIndexPersistFailed, err)
	}
	defer f.Close()

	var state persistedState
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&state); err != nil {
		return cerr.Wrap(cerr.CodeIndexRebuildFailed, err)
	}

	idx.mu.Lock()
	idx.vectors = state.Vectors
	if idx.vectors == nil {
		idx.vectors = make(map[uint64][]float32)
	}
	idx.dirty = true
	idx.mu.Unlock()

	idx.ensureFresh()
	return nil
}

// Shutdown persists final state. Errors are logged, not returned, so a
// slow or failing flush never blocks process exit (§4.5/§7).
func (idx *Index) Shutdown(ctx context.Context) {
	if err := idx.Save(ctx); err != nil {
		idx.logger.Warn("vector index shutdown save failed", slog.String("error", err.Error()))
	}
}
