package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaAdapter_Complete(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"{\"title\":\"Dune\"}","model":"qwen","done":true,"eval_count":7}`))
	}))
	defer srv.Close()

	o, err := NewOllamaAdapter("local", srv.URL+"/", "qwen", time.Second)
	require.NoError(t, err)

	c, err := o.Complete(context.Background(), "Dune.2021.mkv", CompletionOptions{System: "sys", JSON: true, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Dune"}`, c.Text)
	assert.Equal(t, 7, c.UsedTokens)

	assert.Equal(t, "qwen", got["model"])
	assert.Equal(t, "sys", got["system"])
	assert.Equal(t, "json", got["format"])
	assert.Equal(t, false, got["stream"])
}

func TestOllamaAdapter_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o, err := NewOllamaAdapter("local", srv.URL, "missing", time.Second)
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "x", CompletionOptions{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Error(), "model not found")
}

func TestOpenAIAdapter_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"gpt","choices":[{"message":{"role":"assistant","content":"{}"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	o, err := NewOpenAIAdapter("cloud", srv.URL+"/v1", "gpt", "sk-test", time.Second)
	require.NoError(t, err)

	c, err := o.Complete(context.Background(), "file.mkv", CompletionOptions{System: "sys", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "{}", c.Text)
	assert.Equal(t, "stop", c.FinishReason)
	assert.Equal(t, 12, c.UsedTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "file.mkv", got.Messages[1].Content)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestOpenAIAdapter_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAIAdapter("cloud", srv.URL, "gpt", "k", time.Second)
	require.NoError(t, err)
	_, err = o.Complete(context.Background(), "x", CompletionOptions{})
	assert.Error(t, err)
}

func TestNewAdapters_NotConfigured(t *testing.T) {
	_, err := NewOllamaAdapter("a", "", "m", 0)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewOpenAIAdapter("b", "https://api.example.com", "m", "", 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFromConfig_PreservesOrderAndSkipsUnconfigured(t *testing.T) {
	reg, err := FromConfig([]config.ProviderConfig{
		{Name: "cloud", Kind: "openai", Endpoint: "https://api.example.com", Model: "m", APIKey: "k"},
		{Name: "nokey", Kind: "openai", Endpoint: "https://api.example.com", Model: "m"},
		{Name: "local", Kind: "ollama", Endpoint: "http://localhost:11434", Model: "qwen"},
	}, nil)
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "cloud", all[0].ID())
	assert.Equal(t, "local", all[1].ID())
	assert.Equal(t, ProviderTypeOllama, all[1].Type())

	_, ok := reg.Get("nokey")
	assert.False(t, ok)
}

func TestFromConfig_UnknownKind(t *testing.T) {
	_, err := FromConfig([]config.ProviderConfig{{Name: "x", Kind: "carrier-pigeon"}}, nil)
	assert.Error(t, err)
}
