// Package search implements C8: query embedding, ranked nearest-neighbor
// lookup, and reconstruction of the location/container/item result tree.
package search

import (
	"context"
	"math"

	"github.com/kitsune-search/containerindex/internal/cerr"
	"github.com/kitsune-search/containerindex/internal/embed"
	"github.com/kitsune-search/containerindex/internal/metadata"
	"github.com/kitsune-search/containerindex/internal/vectorindex"
)

// Engine is C8: wires C3 (query embedding), C5 (nearest-neighbor
// lookup), and C6 (row hydration) together (§4.8).
type Engine struct {
	embedder embed.Provider
	vec      *vectorindex.Index
	store    *metadata.Store
	builder  *TreeBuilder

	coordsCache *locationResolver
}

// NewEngine wires the three dependencies together.
func NewEngine(embedder embed.Provider, vec *vectorindex.Index, store *metadata.Store) *Engine {
	return &Engine{
		embedder: embedder,
		vec:      vec,
		store:    store,
		builder:  NewTreeBuilder(),
	}
}

// Search executes §4.8 steps 1-5: embed the query, run the (optionally
// filtered) nearest-neighbor search, hydrate rows, and group into
// LocationNodes. allowedOrdinals is nil for an unfiltered search.
func (e *Engine) Search(ctx context.Context, query string, k int, allowedOrdinals map[uint64]struct{}) ([]*LocationNode, error) {
	qVec, err := e.embedder.EmbedOne(ctx, query, embed.TaskRetrievalQuery)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeEmbeddingUnavailable, err)
	}

	var keep func(ordinal uint64) bool
	if allowedOrdinals != nil {
		keep = func(ordinal uint64) bool {
			_, ok := allowedOrdinals[ordinal]
			return ok
		}
	}

	results, err := e.vec.SearchFiltered(ctx, qVec, k, keep)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ordinals := make([]uint64, len(results))
	scoreByOrdinal := make(map[uint64]int, len(results))
	for i, r := range results {
		ordinals[i] = r.Ordinal
		scoreByOrdinal[r.Ordinal] = int(math.Round(float64(r.Score) * 100))
	}

	rows, err := e.store.GetRows(ctx, ordinals)
	if err != nil {
		return nil, err
	}

	hits := make([]scoredHit, 0, len(results))
	for _, r := range results {
		row, ok := rows[r.Ordinal]
		if !ok {
			continue // row deleted between the search and hydration
		}
		hits = append(hits, scoredHit{Row: row, Score: scoreByOrdinal[r.Ordinal]})
	}

	resolver := newLocationResolver(ctx, e.store)
	return e.builder.Build(hits, resolver.resolve), nil
}

// locationResolver memoizes container_id -> (world, coords) lookups
// within a single Search call so repeated hits in the same container
// don't re-query C6.
type locationResolver struct {
	ctx   context.Context
	store *metadata.Store
	cache map[string]resolvedLocation
}

type resolvedLocation struct {
	world  string
	coords []metadata.BlockCoord
}

func newLocationResolver(ctx context.Context, store *metadata.Store) *locationResolver {
	return &locationResolver{ctx: ctx, store: store, cache: make(map[string]resolvedLocation)}
}

func (r *locationResolver) resolve(containerID string) (string, []metadata.BlockCoord) {
	if cached, ok := r.cache[containerID]; ok {
		return cached.world, cached.coords
	}
	world, coords := r.store.ContainerLocation(r.ctx, containerID)
	r.cache[containerID] = resolvedLocation{world: world, coords: coords}
	return world, coords
}
