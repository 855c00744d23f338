package ai

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

func TestGeminiClient_Generate(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"role": "model", "parts": []map[string]string{
					{"text": "{\"answer\":"}, {"text": "42}"},
				}}},
			},
			"usageMetadata": map[string]int{"totalTokenCount": 57},
		})
	}))
	defer server.Close()

	client := NewGeminiClient("test-key", "gemini-2.0-flash", 5*time.Second, 1000,
		WithBaseURL(server.URL))

	res, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "{\"answer\":42}", res.Text)
	assert.Equal(t, 57, res.TokensUsed)
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "hello", gotReq.Contents[0].Parts[0].Text)
	assert.Equal(t, 1000, gotReq.GenerationConfig.MaxOutputTokens)
}

func TestGeminiClient_Generate_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewGeminiClient("k", "m", 5*time.Second, 100, WithBaseURL(server.URL))

	_, err := client.Generate(context.Background(), "hello")
	assert.ErrorContains(t, err, "status 429")
}

func TestGeminiClient_Generate_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer server.Close()

	client := NewGeminiClient("k", "m", 5*time.Second, 100, WithBaseURL(server.URL))

	_, err := client.Generate(context.Background(), "hello")
	assert.ErrorContains(t, err, "no candidates")
}
