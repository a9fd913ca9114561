package llm

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
	return NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "usf1-mini",
		Generation: config.LLMGenerationConfig{
			Temperature: 0.1,
			MaxTokens:   1000,
		},
	})
}

func TestChatCompletionReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model       string    `json:"model"`
			Messages    []Message `json:"messages"`
			Stream      bool      `json:"stream"`
			Temperature *float64  `json:"temperature"`
			MaxTokens   *int      `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "usf1-mini", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.1, *req.Temperature)
		require.NotNil(t, req.MaxTokens)
		assert.Equal(t, 1000, *req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"the answer"}},{"message":{"content":"ignored"}}]}`)
	}))
	defer srv.Close()

	answer, err := newTestClient(srv.URL).ChatCompletion(context.Background(), []Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ChatCompletion(context.Background(), []Message{{Role: "user", Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}

func TestChatCompletionServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ChatCompletion(context.Background(), []Message{{Role: "user", Content: "q"}})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestChatCompletionClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ChatCompletion(context.Background(), []Message{{Role: "user", Content: "q"}})
	require.Error(t, err)
	assert.False(t, apperr.IsTransient(err))
}

func TestChatCompletionMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ChatCompletion(context.Background(), []Message{{Role: "user", Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadResponse, kindOf(t, err))
}
