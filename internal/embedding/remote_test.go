package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"knova/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEmbedder(baseURL string) *RemoteEmbedder {
	return NewRemoteEmbedder(&config.EmbeddingConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func embeddingsPayload(order []int) map[string]any {
	data := make([]map[string]any, len(order))
	for i, index := range order {
		data[i] = map[string]any{
			"index":     index,
			"embedding": []float32{float32(index), float32(index) + 0.5},
		}
	}
	return map[string]any{"data": data}
}

func TestRemoteEmbedderBatch(t *testing.T) {
	var gotAuth string
	var gotReq embeddingsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(embeddingsPayload([]int{0, 1}))
	}))
	defer server.Close()

	vectors, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, []string{"a", "b"}, gotReq.Input)
	assert.Equal(t, []float32{0, 0.5}, vectors[0])
	assert.Equal(t, []float32{1, 1.5}, vectors[1])
}

func TestRemoteEmbedderReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingsPayload([]int{1, 0}))
	}))
	defer server.Close()

	vectors, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vectors[0])
	assert.Equal(t, []float32{1, 1.5}, vectors[1])
}

func TestRemoteEmbedderRetriesTransientFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(embeddingsPayload([]int{0}))
	}))
	defer server.Close()

	vectors, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 2, calls)
}

func TestRemoteEmbedderNoRetryOnClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), []string{"a"})

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, 1, calls)
}

func TestRemoteEmbedderCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingsPayload([]int{0}))
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL).EmbedBatch(context.Background(), []string{"a", "b"})

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}

func TestRemoteEmbedderEmptyInput(t *testing.T) {
	vectors, err := newTestEmbedder("http://unused").EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestRemoteEmbedderQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingsPayload([]int{0}))
	}))
	defer server.Close()

	vector, err := newTestEmbedder(server.URL).EmbedQuery(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vector)
}
