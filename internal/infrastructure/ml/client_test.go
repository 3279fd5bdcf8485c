package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CommentTrends/internal/config"
)

func TestEmbedBatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-MiniLM-L6-v2", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		// Out of order on purpose.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{Endpoint: server.URL + "/", Model: "all-MiniLM-L6-v2", APIKey: "secret"})
	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbedBatchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{Endpoint: server.URL})
	vectors, err := client.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}}, vectors)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatchClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{Endpoint: server.URL})
	_, err := client.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchRejectsBadIndices(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body string
		want string
	}{
		"duplicate":    {`{"data":[{"index":0,"embedding":[1,0]},{"index":0,"embedding":[0,1]}]}`, "duplicate index 0"},
		"out of range": {`{"data":[{"index":0,"embedding":[1,0]},{"index":2,"embedding":[0,1]}]}`, "index 2 out of range"},
		"negative":     {`{"data":[{"index":-1,"embedding":[1,0]},{"index":1,"embedding":[0,1]}]}`, "index -1 out of range"},
		"empty vector": {`{"data":[{"index":0,"embedding":[1,0]},{"index":1,"embedding":[]}]}`, "empty vector at index 1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(config.EmbeddingConfig{Endpoint: server.URL})
			vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
			assert.ErrorContains(t, err, tc.want)
			assert.Nil(t, vectors)
		})
	}
}
