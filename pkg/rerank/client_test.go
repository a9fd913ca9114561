package rerank

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
	return NewClient(config.RerankConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "usf1-rerank",
	})
}

func scoreServer(t *testing.T, scores []float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Texts, len(scores))

		type item struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		}
		data := make([]item, len(scores))
		for i, s := range scores {
			data[i] = item{Index: i, Score: s}
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"data": data}})
	}))
}

func TestRerankOrdersByScoreDescending(t *testing.T) {
	srv := scoreServer(t, []float64{0.2, 0.9, 0.5})
	defer srv.Close()

	indices, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, indices)
}

func TestRerankTiesKeepOriginalOrder(t *testing.T) {
	// 得分相同时按候选原始下标升序，输出确定。
	srv := scoreServer(t, []float64{0.5, 0.5, 0.9, 0.5})
	defer srv.Close()

	indices, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1, 3}, indices)
}

func TestRerankEmptyInput(t *testing.T) {
	indices, err := newTestClient("http://unused").Rerank(context.Background(), "q", nil)
	assert.NoError(t, err)
	assert.Nil(t, indices)
}

func TestRerankCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"data":[{"index":0,"score":0.5}]}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestRerankDuplicateIndexRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"data":[{"index":0,"score":0.9},{"index":0,"score":0.5}]}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestRerankOutOfRangeIndexRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"data":[{"index":0,"score":0.9},{"index":7,"score":0.5}]}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestRerankServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestRerankMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `oops`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Rerank(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}
