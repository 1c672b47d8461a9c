// Package engine is the public facade wiring C1 through C8 into a single
// embeddable container index, analogous to the teacher's pkg/indexer and
// pkg/searcher facades over its internal stores.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/kitsune-search/containerindex/internal/cerr"
	"github.com/kitsune-search/containerindex/internal/config"
	"github.com/kitsune-search/containerindex/internal/embed"
	"github.com/kitsune-search/containerindex/internal/embedcache"
	"github.com/kitsune-search/containerindex/internal/indexer"
	"github.com/kitsune-search/containerindex/internal/item"
	"github.com/kitsune-search/containerindex/internal/logging"
	"github.com/kitsune-search/containerindex/internal/metadata"
	"github.com/kitsune-search/containerindex/internal/search"
	"github.com/kitsune-search/containerindex/internal/serialize"
	"github.com/kitsune-search/containerindex/internal/tags"
	"github.com/kitsune-search/containerindex/internal/vectorindex"
)

// Engine is the top-level entry point embedding hosts use: schedule
// container reindexing, run searches, and shut everything down cleanly.
type Engine struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()

	serializer *serialize.Serializer
	embedder   embed.Provider
	cache      *embedcache.Cache
	vec        *vectorindex.Index
	store      *metadata.Store
	scheduler  *indexer.Scheduler
	runner     *indexer.Runner
	search     *search.Engine

	mu     sync.RWMutex
	closed bool
}

// checkOpen returns cerr.ShutdownInProgress once Shutdown has been
// observed, so every public operation rejects cleanly instead of
// touching dependencies that are mid-teardown (§7).
func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return cerr.ShutdownInProgress
	}
	return nil
}

// New constructs an Engine from a fully-resolved config, opening the
// metadata store, loading the vector index from disk, and seeding C5's
// sparse vector map from C4 lookups over C6's ordinals (§4.6).
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	logger, closeLog, err := logging.Setup(logging.DefaultConfig(cfg.DataFolder))
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeConfigInvalid, err)
	}

	embedder, err := embed.NewFromConfig(cfg.Embedding, cfg.DataFolder)
	if err != nil {
		return nil, cerr.Wrap(cerr.CodeConfigInvalid, err)
	}

	dim := embedder.Dimension()
	if cfg.Embedding.Dimension != 0 {
		dim = cfg.Embedding.Dimension
	}

	cache, err := embedcache.New(embedcache.Config{
		Path:       filepath.Join(cfg.DataFolder, "embedding_cache.db"),
		L1Capacity: cfg.Cache.MaxInMemory,
		Dimension:  dim,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := metadata.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	vec := vectorindex.New(dim, filepath.Join(cfg.DataFolder, "vectorindex"), logger)
	if err := vec.Load(ctx); err != nil {
		logger.Warn("vector index load failed, starting empty", slog.String("error", err.Error()))
	}
	if err := seedVectorIndex(ctx, store, cache, vec); err != nil {
		logger.Warn("vector index seed incomplete", slog.String("error", err.Error()))
	}

	registry := tags.DefaultRegistry(logger)
	serializer := serialize.New(registry)

	runner := indexer.NewRunner(store, vec, cache, embedder, logger)
	debounce := time.Duration(cfg.Index.DebounceMS) * time.Millisecond
	scheduler := indexer.NewScheduler(debounce, runner.Run, logger)

	searchEngine := search.NewEngine(embedder, vec, store)

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		closeLog:   closeLog,
		serializer: serializer,
		embedder:   embedder,
		cache:      cache,
		vec:        vec,
		store:      store,
		scheduler:  scheduler,
		runner:     runner,
		search:     searchEngine,
	}, nil
}

// seedVectorIndex repairs a fresh/empty vector index by pulling every
// ordinal's vector back out of C4 (§4.6: "used at startup to seed C5's
// vector_map from C4 lookups"). Ordinals with no cached vector are left
// for the next diff that touches their slot to repair.
func seedVectorIndex(ctx context.Context, store *metadata.Store, cache *embedcache.Cache, vec *vectorindex.Index) error {
	if vec.Len() > 0 {
		return nil // loaded from disk already
	}
	ordinals, err := store.AllOrdinals(ctx)
	if err != nil {
		return err
	}
	if len(ordinals) == 0 {
		return nil
	}

	rows, err := store.GetRows(ctx, ordinals)
	if err != nil {
		return err
	}

	fpToOrdinals := make(map[uint64][]uint64, len(rows))
	var fps []uint64
	for ordinal, row := range rows {
		fpToOrdinals[row.Fingerprint] = append(fpToOrdinals[row.Fingerprint], ordinal)
		fps = append(fps, row.Fingerprint)
	}

	found := cache.GetAll(ctx, fps)
	entries := make(map[uint64][]float32, len(ordinals))
	for fp, vector := range found {
		for _, ordinal := range fpToOrdinals[fp] {
			entries[ordinal] = vector
		}
	}
	return vec.PutAll(entries)
}

// ScheduleIndex walks items via C2 and schedules a debounced indexing
// job for the given world/coords through C7 (§4.7).
func (e *Engine) ScheduleIndex(locationKey, world string, coords []metadata.BlockCoord, containerType string, items []item.Item) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	serialized := e.serializer.Serialize(items)
	e.scheduler.ScheduleIndex(locationKey, indexer.Job{
		World:         world,
		Coords:        coords,
		ContainerType: containerType,
		Items:         serialized,
	})
	return nil
}

// ReindexRadius re-walks every container within r of (x,y,z) (§4.7
// "Radius reindex"). fetchContents lets the host supply live container
// state; the engine has no independent way to read it.
func (e *Engine) ReindexRadius(ctx context.Context, world string, x, y, z, radius float64, fetchContents func(containerID string) (indexer.Job, error)) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.runner.ReindexRadius(ctx, world, x, y, z, radius, fetchContents)
}

// Search runs §4.8's search-and-tree-build pipeline.
func (e *Engine) Search(ctx context.Context, query string, k int, allowedOrdinals map[uint64]struct{}) ([]*search.LocationNode, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.search.Search(ctx, query, k, allowedOrdinals)
}

// CacheSize reports the number of cached embeddings in C4's durable
// store, for ops tooling.
func (e *Engine) CacheSize(ctx context.Context) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	return e.cache.Size(ctx)
}

// PurgeCache clears every cached embedding from C4 (both tiers).
func (e *Engine) PurgeCache(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.cache.Clear(ctx)
}

// VectorIndexSize reports the number of vectors held in C5.
func (e *Engine) VectorIndexSize() (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	return e.vec.Len(), nil
}

// PurgeVectorIndex drops every vector from C5. Vectors return through
// later indexing jobs or through the startup seed from C4 in New.
func (e *Engine) PurgeVectorIndex() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	e.vec.PurgeAll()
	return nil
}

// ContainersInRadius lists the container IDs C6 has recorded within r of
// (x,y,z) in world, for ops tooling that needs to know what a radius
// reindex would touch before the host supplies live data for it.
func (e *Engine) ContainersInRadius(ctx context.Context, world string, x, y, z, r float64) ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ContainersInRadius(ctx, world, x, y, z, r)
}

// ItemCount reports the total number of indexed items in C6.
func (e *Engine) ItemCount(ctx context.Context) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	ordinals, err := e.store.AllOrdinals(ctx)
	if err != nil {
		return 0, err
	}
	return len(ordinals), nil
}

// Shutdown flushes the cache, persists the vector index, and closes the
// metadata store and embedder. Safe to call once; subsequent calls are
// no-ops (§7).
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.scheduler.Shutdown()
	e.vec.Shutdown(ctx)

	if err := e.cache.Shutdown(); err != nil {
		e.logger.Warn("cache shutdown incomplete", slog.String("error", err.Error()))
	}
	if err := e.embedder.Close(); err != nil {
		e.logger.Warn("embedder close failed", slog.String("error", err.Error()))
	}
	if err := e.store.Close(); err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	if e.closeLog != nil {
		e.closeLog()
	}
	return nil
}
