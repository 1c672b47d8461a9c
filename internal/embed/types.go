// Package embed implements C3: pluggable text-to-vector embedding
// providers with task-type prefixing, L2 normalization, and batching
// (spec.md §4.3).
package embed

import (
	"context"
	"math"
	"time"
)

// TaskType is the intent hint passed to embedding models (§4.3, GLOSSARY).
type TaskType string

const (
	TaskRetrievalDocument TaskType = "retrieval_document"
	TaskRetrievalQuery    TaskType = "retrieval_query"
	TaskClustering        TaskType = "clustering"
	TaskClassification    TaskType = "classification"
)

// Defaults shared by both provider variants.
const (
	DefaultBatchSize   = 32
	MaxBatchSize       = 256
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// Provider is C3's public interface: text -> unit-norm float vector.
// Implementations never retry internally (§4.3: "retry is C7's concern").
type Provider interface {
	EmbedOne(ctx context.Context, text string, task TaskType) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
	Dimension() int
	Close() error
}

// ErrEmbeddingUnavailable is returned for any IO/5xx/malformed-response
// failure (§4.3, §7). A context cancelled before a request is issued is
// reported as the context's own error instead.
type ErrEmbeddingUnavailable struct {
	Cause error
}

func (e *ErrEmbeddingUnavailable) Error() string {
	return "embedding_unavailable: " + e.Cause.Error()
}

func (e *ErrEmbeddingUnavailable) Unwrap() error { return e.Cause }

// normalize L2-normalizes v in place and returns it, satisfying
// Invariant V1 even for providers that do not return unit vectors.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return v
}
