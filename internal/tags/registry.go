// Package tags implements C1: the tag registry that collects string tags
// describing an item for the text serializer (spec.md §4.1).
package tags

import (
	"log/slog"
	"strings"

	"github.com/kitsune-search/containerindex/internal/item"
)

// Provider is a pure function from an item to a set of lowercase ASCII
// tags. A provider must never panic in well-formed use; Registry still
// recovers and skips one that does, per §4.1's "infallible" contract.
type Provider func(it item.Item) []string

// Registry holds an ordered sequence of tag providers.
type Registry struct {
	logger    *slog.Logger
	providers []Provider
}

// NewRegistry creates an empty registry. Use WithProvider to add
// providers, or DefaultRegistry for the pre-wired provider set.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// WithProvider appends a provider and returns the registry for chaining.
func (r *Registry) WithProvider(p Provider) *Registry {
	r.providers = append(r.providers, p)
	return r
}

// CollectTags runs every provider against it, unions the results into a
// deduplicated, lowercased set, and never returns an error: a panicking
// provider is logged and skipped (§4.1).
func (r *Registry) CollectTags(it item.Item) []string {
	seen := make(map[string]struct{})
	var out []string

	for i, p := range r.providers {
		tags := r.runSafely(i, p, it)
		for _, t := range tags {
			lower := strings.ToLower(strings.TrimSpace(t))
			if lower == "" {
				continue
			}
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			out = append(out, lower)
		}
	}
	return out
}

func (r *Registry) runSafely(idx int, p Provider, it item.Item) (tags []string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("tag provider panicked, skipping",
				slog.Int("provider_index", idx),
				slog.Any("recover", rec),
			)
			tags = nil
		}
	}()
	return p(it)
}

// DefaultRegistry returns a Registry pre-populated with every provider
// enumerated in spec.md §4.1.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	return r.
		WithProvider(EnchantmentTags).
		WithProvider(BlockFlagTags).
		WithProvider(MaterialBucketTags).
		WithProvider(CategoricalKindTags).
		WithProvider(StorageTags).
		WithProvider(UnbreakableTag)
}
