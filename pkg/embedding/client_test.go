package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat-go/internal/config"
	"doc-chat-go/pkg/apperr"
)

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	kind, ok := apperr.KindOf(err)
	require.True(t, ok, "error is not classified: %v", err)
	return kind
}

func newTestClient(url string) Client {
	return NewClient(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "usf1-embed",
		Dimensions: 4,
	})
}

func TestEmbedManyOrderPreserved(t *testing.T) {
	// 服务端乱序返回，客户端必须按 index 字段归位。
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "usf1-embed", req.Model)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		// 逆序写回
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(i)}})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	vectors, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i)}, v)
	}
}

func TestEmbedManyEmptyInput(t *testing.T) {
	vectors, err := newTestClient("http://unused").EmbedMany(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedManyCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[0.1]}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestEmbedManyServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestEmbedManyClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.False(t, apperr.IsTransient(err))
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestEmbedManyMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestEmbedManyEmptyVectorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[]}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestEmbedManyOutOfRangeIndexRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":5,"embedding":[0.1]}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestEmbedOneDelegates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[0.5,0.6]}]}`)
	}))
	defer srv.Close()

	vector, err := newTestClient(srv.URL).EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vector)
}
