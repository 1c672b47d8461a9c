package embed

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// LocalConfig configures the local_model variant: a tokenizer file plus
// a CGO-free shared library providing the actual inference, loaded via
// purego.Dlopen the way the teacher's cmd/purego-test proves out (§4.3,
// §6 "<data>/models/<model>.onnx").
type LocalConfig struct {
	// LibraryPath is the shared inference library (.so/.dylib/.dll)
	// exporting the C ABI described below.
	LibraryPath string
	// TokenizerPath is a tokenizer.json-style vocabulary file.
	TokenizerPath string
	Dimension     int
	MaxLen        int
	Prefix        PrefixStrategy
	// PrePooled indicates the model exposes a pre-pooled sentence
	// embedding as its first output tensor (§4.3), bypassing mean
	// pooling over the last hidden state.
	PrePooled bool
}

// inferenceFunc matches the C ABI exported by the local inference
// library: given tokenized IDs (space-packed as int32) and their count,
// the desired output dimension, and a pooling mode flag, fill out with
// the embedding and return 0 on success. pooled is 1 when the caller
// wants the model's own pre-pooled sentence embedding (its first output
// tensor) and 0 when it wants mean pooling over the last hidden state
// (§4.3's "pre-pooled vs. mean-pooling" distinction).
//
//	int32_t ci_embed(const int32_t *token_ids, int32_t n_tokens,
//	                  float *out, int32_t out_dim, int32_t pooled);
type inferenceFunc func(tokenIDs []int32, nTokens int32, out []float32, outDim int32, pooled int32) int32

// LocalModelEmbedder runs inference through a dlopen'd shared library
// instead of linking an ONNX runtime via CGO.
type LocalModelEmbedder struct {
	cfg       LocalConfig
	tokenizer *Tokenizer
	handle    uintptr
	infer     inferenceFunc

	mu     sync.Mutex
	closed bool
}

var _ Provider = (*LocalModelEmbedder)(nil)

// NewLocalModelEmbedder loads the tokenizer and dlopens the inference
// library, registering the `ci_embed` symbol via purego.
func NewLocalModelEmbedder(cfg LocalConfig) (*LocalModelEmbedder, error) {
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 256
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	handle, err := purego.Dlopen(cfg.LibraryPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", cfg.LibraryPath, err)
	}

	var infer inferenceFunc
	purego.RegisterLibFunc(&infer, handle, "ci_embed")

	return &LocalModelEmbedder{
		cfg:       cfg,
		tokenizer: tokenizer,
		handle:    handle,
		infer:     infer,
	}, nil
}

// Dimension returns the configured embedding width.
func (e *LocalModelEmbedder) Dimension() int {
	return e.cfg.Dimension
}

// EmbedOne embeds a single text.
func (e *LocalModelEmbedder) EmbedOne(ctx context.Context, text string, task TaskType) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text}, task)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch pads every text in the batch to cfg.MaxLen tokens and runs
// one inference call per text (§4.3: "the local variant pads the batch
// to max_len").
func (e *LocalModelEmbedder) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, &ErrEmbeddingUnavailable{Cause: fmt.Errorf("embedder closed")}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		prefixed := e.cfg.Prefix.Apply(text, task)
		ids := e.tokenizer.Encode(prefixed, e.cfg.MaxLen)

		var pooled int32
		if e.cfg.PrePooled {
			pooled = 1
		}
		vec := make([]float32, e.cfg.Dimension)
		rc := e.infer(ids, int32(len(ids)), vec, int32(e.cfg.Dimension), pooled)
		if rc != 0 {
			return nil, &ErrEmbeddingUnavailable{Cause: fmt.Errorf("ci_embed returned %d", rc)}
		}
		out[i] = normalize(vec)
	}
	return out, nil
}

// Close releases the dlopen'd library handle.
func (e *LocalModelEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return purego.Dlclose(e.handle)
}

// DefaultLibraryExtension returns the platform's native shared library
// suffix, mirroring the teacher's runtime.GOOS switch in cmd/purego-test.
func DefaultLibraryExtension() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}
