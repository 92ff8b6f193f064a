package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowflow/internal/domain"
)

func TestClientChat(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Paris."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := New("groq", "gemma2-9b-it", Options{BaseURL: srv.URL + "/", Temperature: 0.2})
	require.NoError(t, err)

	answer, err := c.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "What is the capital of France?"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, "gemma2-9b-it", got.Model)
	assert.Equal(t, 0.2, got.Temperature)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "gemma2-9b-it", c.ModelName())
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	msgs := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "")
		_, err := New("groq", "gemma2-9b-it", Options{})
		assert.ErrorContains(t, err, "GROQ_API_KEY")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New("mystery", "m", Options{})
		assert.Error(t, err)
	})

	t.Run("api error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}))
		defer srv.Close()

		c, err := New("ollama", "llama3", Options{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Chat(ctx, msgs)
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("non-json failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()

		c, err := New("ollama", "llama3", Options{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Chat(ctx, msgs)
		assert.ErrorContains(t, err, "502")
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		c, err := New("ollama", "llama3", Options{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.Chat(ctx, msgs)
		assert.ErrorContains(t, err, "no response")
	})

	t.Run("cancelled context", func(t *testing.T) {
		c, err := New("ollama", "llama3", Options{RequestsPerSecond: 1})
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = c.Chat(cctx, msgs)
		assert.Error(t, err)
	})
}
