package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "what sold best?", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be terse", req.SystemInstruction.Parts[0].Text)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"SELECT product"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})

	out, err := client.CompleteWithSystem(context.Background(), "be terse", "what sold best?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT product", out)
}

func TestGeminiEmptyCandidatesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewGeminiClientWithConfig(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestGeminiDefaultsFillEmptyConfig(t *testing.T) {
	client := NewGeminiClientWithConfig(GeminiConfig{APIKey: "k"})
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta", client.BaseURL())
	assert.Equal(t, "gemini-2.5-flash", client.GetModel())
}

func TestGeminiReadFailureKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte(`{"candidates":`))
	}))
	t.Cleanup(srv.Close)

	client := NewGeminiClientWithConfig(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	client.maxRetries = 0

	_, err := client.Complete(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestGeminiExplicitZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewGeminiClientWithConfig(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := client.CompleteWithOptions(context.Background(), Options{Prompt: "q", Temperature: Temp(0)})
	require.NoError(t, err)

	genCfg, ok := got["generationConfig"].(map[string]any)
	require.True(t, ok)
	temp, ok := genCfg["temperature"]
	require.True(t, ok, "temperature must always be sent")
	assert.InDelta(t, 0.0, temp, 1e-9)
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(Config{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	_, ok := c.(*GeminiClient)
	assert.True(t, ok)

	c, err = New(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	_, ok = c.(*AnthropicClient)
	assert.True(t, ok)

	_, err = New(Config{Provider: "cohere"})
	assert.Error(t, err)
}
