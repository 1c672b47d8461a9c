package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// RemoteConfig configures RemoteHTTPEmbedder.
type RemoteConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	Dimension      int // 0 = auto-detect from first response
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	PoolSize       int
	SupportsBatch  bool // if false, EmbedBatch falls back to sequential calls
	TaskParam      bool // if true, task_type is sent as a request field
}

// remoteRequest is the POST body, matching §6's "{'input': text|[text],
// 'model': m}" shape with an optional task_type extension.
type remoteRequest struct {
	Input    any    `json:"input"`
	Model    string `json:"model"`
	TaskType string `json:"task_type,omitempty"`
}

type remoteResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// RemoteHTTPEmbedder is C3's remote_http variant: a single shared HTTP
// client posting batched JSON requests, grounded on the teacher's
// OllamaEmbedder connection-pool/timeout design. Each request is sent
// once; a failed request is not retried.
type RemoteHTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	cfg       RemoteConfig

	pool *semaphore.Weighted

	mu     sync.RWMutex
	dim    int
	closed bool
}

var _ Provider = (*RemoteHTTPEmbedder)(nil)

// NewRemoteHTTPEmbedder constructs a remote embedder. It does not make any
// network calls until the first Embed* call (dimension is resolved lazily
// unless cfg.Dimension is set).
func NewRemoteHTTPEmbedder(cfg RemoteConfig) *RemoteHTTPEmbedder {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
		DialContext:         dialer.DialContext,
	}

	return &RemoteHTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		dim:       cfg.Dimension,
		pool:      semaphore.NewWeighted(int64(cfg.PoolSize)),
	}
}

// Dimension returns the provider-declared embedding width.
func (e *RemoteHTTPEmbedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dim
}

// EmbedOne embeds a single text.
func (e *RemoteHTTPEmbedder) EmbedOne(ctx context.Context, text string, task TaskType) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text}, task)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in the same order as input, falling back to
// sequential single-text calls when the remote API does not support
// batching (§4.3).
func (e *RemoteHTTPEmbedder) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, &ErrEmbeddingUnavailable{Cause: fmt.Errorf("embedder closed")}
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if !e.cfg.SupportsBatch {
		return e.embedSequentialPooled(ctx, texts, task)
	}

	return e.doRequest(ctx, texts, task)
}

// embedSequentialPooled embeds each text with its own request, bounding
// concurrency to cfg.PoolSize (the "I/O-bound pool" called for by the
// remote variant's scheduling model).
func (e *RemoteHTTPEmbedder) embedSequentialPooled(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)

	for i, t := range texts {
		i, t := i, t
		if err := e.pool.Acquire(gCtx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer e.pool.Release(1)
			v, err := e.doRequest(gCtx, []string{t}, task)
			if err != nil {
				return err
			}
			out[i] = v[0]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// doRequest makes exactly one attempt: providers never retry internally,
// retry is C7's concern (§4.3).
func (e *RemoteHTTPEmbedder) doRequest(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	result, err := e.doRequestOnce(ctx, texts, task)
	if err != nil {
		return nil, &ErrEmbeddingUnavailable{Cause: err}
	}
	return result, nil
}

func (e *RemoteHTTPEmbedder) doRequestOnce(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	reqBody := remoteRequest{Input: input, Model: e.cfg.Model}
	if e.cfg.TaskParam {
		reqBody.TaskType = string(task)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.cfg.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote embedding status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Embeddings), len(texts))
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		out[i] = normalize(vec)
	}

	e.mu.Lock()
	if e.dim == 0 && len(out) > 0 {
		e.dim = len(out[0])
	}
	e.mu.Unlock()

	return out, nil
}

// Close releases pooled connections.
func (e *RemoteHTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
