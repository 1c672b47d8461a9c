package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteHTTPEmbedder_EmbedOne_NormalizesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Input)
		assert.Equal(t, "retrieval_query", req.TaskType)
		_ = json.NewEncoder(w).Encode(remoteResponse{Embeddings: [][]float64{{3, 4}}})
	}))
	defer srv.Close()

	e := NewRemoteHTTPEmbedder(RemoteConfig{Endpoint: srv.URL, Model: "m", SupportsBatch: true, TaskParam: true})
	defer func() { _ = e.Close() }()

	v, err := e.EmbedOne(context.Background(), "hello", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.InDelta(t, 0.6, v[0], 0.001)
	assert.InDelta(t, 0.8, v[1], 0.001)
	assert.Equal(t, 2, e.Dimension())
}

func TestRemoteHTTPEmbedder_EmbedBatch_SendsArrayInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		arr, ok := req.Input.([]any)
		require.True(t, ok)
		assert.Len(t, arr, 2)
		_ = json.NewEncoder(w).Encode(remoteResponse{Embeddings: [][]float64{{1, 0}, {0, 1}}})
	}))
	defer srv.Close()

	e := NewRemoteHTTPEmbedder(RemoteConfig{Endpoint: srv.URL, Model: "m", SupportsBatch: true})
	defer func() { _ = e.Close() }()

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestRemoteHTTPEmbedder_NoBatchSupport_FallsBackToSequential(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(remoteResponse{Embeddings: [][]float64{{1, 1}}})
	}))
	defer srv.Close()

	e := NewRemoteHTTPEmbedder(RemoteConfig{Endpoint: srv.URL, Model: "m", SupportsBatch: false})
	defer func() { _ = e.Close() }()

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}, TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, int64(3), calls.Load())
}

func TestRemoteHTTPEmbedder_ErrorStatus_ReturnsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	e := NewRemoteHTTPEmbedder(RemoteConfig{Endpoint: srv.URL, Model: "m", SupportsBatch: true})
	defer func() { _ = e.Close() }()

	_, err := e.EmbedOne(context.Background(), "x", TaskRetrievalQuery)
	require.Error(t, err)
	var unavailable *ErrEmbeddingUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestRemoteHTTPEmbedder_ClosedEmbedderRejectsCalls(t *testing.T) {
	e := NewRemoteHTTPEmbedder(RemoteConfig{Endpoint: "http://unused", Model: "m"})
	require.NoError(t, e.Close())

	_, err := e.EmbedBatch(context.Background(), []string{"x"}, TaskRetrievalQuery)
	require.Error(t, err)
}

func TestRemoteHTTPEmbedder_EmptyBatchReturnsEmpty(t *testing.T) {
	e := NewRemoteHTTPEmbedder(RemoteConfig{Endpoint: "http://unused", Model: "m"})
	defer func() { _ = e.Close() }()

	out, err := e.EmbedBatch(context.Background(), nil, TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Empty(t, out)
}
