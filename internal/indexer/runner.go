package indexer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/kitsune-search/containerindex/internal/cerr"
	"github.com/kitsune-search/containerindex/internal/embed"
	"github.com/kitsune-search/containerindex/internal/embedcache"
	"github.com/kitsune-search/containerindex/internal/item"
	"github.com/kitsune-search/containerindex/internal/metadata"
	"github.com/kitsune-search/containerindex/internal/serialize"
	"github.com/kitsune-search/containerindex/internal/vectorindex"
)

// itemKey is the (slot, container_path) identity used to diff incoming
// items against existing rows (§4.7 step 2).
type itemKey struct {
	slot int
	path string
}

// Runner executes the diff/embed/persist algorithm of §4.7 against C5
// and C6, driven by the Scheduler once a location's debounce window
// elapses.
type Runner struct {
	logger *slog.Logger
	store  *metadata.Store
	vec    *vectorindex.Index
	cache  *embedcache.Cache
	embedder embed.Provider
}

// NewRunner wires C7 to its C4/C5/C6 dependencies.
func NewRunner(store *metadata.Store, vec *vectorindex.Index, cache *embedcache.Cache, embedder embed.Provider, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, store: store, vec: vec, cache: cache, embedder: embedder}
}

// Run executes the full diff algorithm for one job (§4.7 steps 1-6). A
// C6 failure aborts the whole job; a single item's embedding failure
// aborts only that item.
func (r *Runner) Run(ctx context.Context, job Job) {
	containerID, err := r.store.UpsertContainer(ctx, job.World, job.Coords)
	if err != nil {
		r.logger.Error("indexing job aborted: could not resolve container", slog.String("error", err.Error()))
		return
	}
	if job.ContainerType != "" {
		if err := r.store.SetContainerType(ctx, containerID, job.ContainerType); err != nil {
			r.logger.Warn("failed to set container type", slog.String("error", err.Error()))
		}
	}

	existingRows, err := r.store.GetItemsByContainer(ctx, containerID)
	if err != nil {
		r.logger.Error("indexing job aborted: could not load existing rows", slog.String("error", err.Error()))
		return
	}
	existing := make(map[itemKey]metadata.ItemRow, len(existingRows))
	for _, row := range existingRows {
		existing[keyFor(row.Slot, row.ContainerPath)] = row
	}

	incoming := make(map[itemKey]serialize.SerializedItem, len(job.Items))
	newFPs := make(map[itemKey]uint64, len(job.Items))
	for _, si := range job.Items {
		k := keyFor(si.Slot, si.ContainerPath)
		incoming[k] = si
		fp, err := serialize.FingerprintFromBytes(si.StorageRecord)
		if err != nil {
			r.logger.Warn("skipping item with unparseable storage record", slog.String("error", err.Error()))
			continue
		}
		newFPs[k] = fp
	}

	var removed []metadata.ItemRow
	var addedOrReplaced []itemPlan

	for k, row := range existing {
		if _, stillPresent := incoming[k]; !stillPresent {
			removed = append(removed, row)
		}
	}
	for k, si := range incoming {
		fp, ok := newFPs[k]
		if !ok {
			continue
		}
		if row, existed := existing[k]; existed && row.Fingerprint == fp {
			continue // unchanged
		}
		addedOrReplaced = append(addedOrReplaced, itemPlan{key: k, item: si, fingerprint: fp})
	}

	for _, row := range removed {
		r.vec.Remove(row.Ordinal)
		if err := r.store.DeleteItem(ctx, row.Ordinal); err != nil {
			r.logger.Error("C6 delete_item failed, aborting job", slog.String("error", err.Error()))
			return
		}
	}

	if len(addedOrReplaced) > 0 {
		r.applyAddedOrReplaced(ctx, containerID, addedOrReplaced)
	}

	if err := r.store.TouchLastIndexed(ctx, containerID, time.Now().Unix()); err != nil {
		r.logger.Warn("failed to update last_indexed_at", slog.String("error", err.Error()))
	}
}

type itemPlan struct {
	key         itemKey
	item        serialize.SerializedItem
	fingerprint uint64
}

// applyAddedOrReplaced performs §4.7 step 5's batched vector acquisition
// (cache lookup, then embed the misses) before persisting rows and
// vectors.
func (r *Runner) applyAddedOrReplaced(ctx context.Context, containerID string, plans []itemPlan) {
	fps := make([]uint64, 0, len(plans))
	for _, p := range plans {
		fps = append(fps, p.fingerprint)
	}

	found := r.cache.GetAll(ctx, fps)

	var toEmbedPlans []itemPlan
	for _, p := range plans {
		if _, ok := found[p.fingerprint]; !ok {
			toEmbedPlans = append(toEmbedPlans, p)
		}
	}

	newlyEmbedded := make(map[uint64][]float32, len(toEmbedPlans))
	if len(toEmbedPlans) > 0 {
		texts := make([]string, len(toEmbedPlans))
		for i, p := range toEmbedPlans {
			texts[i] = p.item.EmbeddingText
		}
		vectors, err := r.embedder.EmbedBatch(ctx, texts, embed.TaskRetrievalDocument)
		if err != nil {
			// §4.7 failure semantics: an embedding failure aborts only
			// the items in this batch, not the whole job.
			r.logger.Warn("embedding batch failed, skipping affected items", slog.String("error", err.Error()))
		} else {
			for i, p := range toEmbedPlans {
				newlyEmbedded[p.fingerprint] = vectors[i]
			}
			r.cache.PutAll(newlyEmbedded)
		}
	}

	for _, p := range plans {
		vec, ok := found[p.fingerprint]
		if !ok {
			vec, ok = newlyEmbedded[p.fingerprint]
		}
		if !ok {
			continue // embedding unavailable for this item; leave prior state untouched
		}

		ordinal, err := r.store.UpsertItem(ctx, containerID, p.key.slot, p.item.ContainerPath, p.fingerprint, p.item.StorageRecord)
		if err != nil {
			r.logger.Error("C6 upsert_item failed, aborting job", slog.String("error", err.Error()))
			return
		}

		if err := r.vec.Put(ordinal, vec); err != nil {
			// retried once inline per §4.7 failure semantics
			if err := r.vec.Put(ordinal, vec); err != nil {
				r.logger.Error("C5 add failed twice, leaving orphan ordinal for next diff to repair",
					slog.Uint64("ordinal", ordinal), slog.String("error", err.Error()))
			}
		}
	}
}

func keyFor(slot int, path item.ContainerPath) itemKey {
	return itemKey{slot: slot, path: path.Key() + pathSig(path)}
}

// pathSig disambiguates paths that share a Key() (same container type and
// parent slot at each depth) but differ in color/name, since item.ContainerPath.Key
// alone is not a full identity (it exists for tree-node dedup, §4.8).
// ParentSlotIndex is included so sibling containers of identical
// type/color/name at different slots within the same parent don't
// collide, mirroring internal/search/tree.go's accum construction.
func pathSig(path item.ContainerPath) string {
	var sig string
	for _, ref := range path {
		sig += "#" + ref.ContainerType + "|" + ref.Color + "|" + ref.CustomName + "|" + strconv.Itoa(ref.ParentSlotIndex)
	}
	return sig
}

// ReindexRadius asks C6 for containers within r of center and re-derives
// a Job for each via fetchContents, funneling them through the same
// Run path (§4.7 "Radius reindex"). fetchContents is supplied by the
// host since C7 has no way to read live container state on its own.
func (r *Runner) ReindexRadius(ctx context.Context, world string, x, y, z, radius float64, fetchContents func(containerID string) (Job, error)) error {
	ids, err := r.store.ContainersInRadius(ctx, world, x, y, z, radius)
	if err != nil {
		return cerr.Wrap(cerr.CodeMetadataIO, err)
	}
	for _, id := range ids {
		job, err := fetchContents(id)
		if err != nil {
			r.logger.Warn("failed to fetch container contents for radius reindex",
				slog.String("container_id", id), slog.String("error", err.Error()))
			continue
		}
		r.Run(ctx, job)
	}
	return nil
}
