package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, status int, body any, seen *map[string]any) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return p
}

func chatCompletion(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var sent map[string]any
	p := openAIServer(t, http.StatusOK, chatCompletion(`{"equivalent":false,"confidence":0.95}`, "stop"), &sent)

	resp, err := p.Generate(context.Background(), Request{
		System:    "You grade quiz answers.",
		Prompt:    "Accepted: apple. Given: pear.",
		Schema:    verdictSchema(),
		MaxTokens: 128,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"equivalent":false,"confidence":0.95}`, string(resp.Content))
	assert.Equal(t, 65, resp.Usage.Total())
	assert.Equal(t, StopEnd, resp.Stop)

	msgs, _ := sent["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "Accepted: apple. Given: pear.", msgs[1].(map[string]any)["content"])
	format, _ := sent["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
}

func TestOpenAISchemaMismatch(t *testing.T) {
	p := openAIServer(t, http.StatusOK, chatCompletion(`{"equivalent":true}`, "stop"), nil)

	_, err := p.Generate(context.Background(), Request{Prompt: "x", Schema: verdictSchema()})
	assert.True(t, IsKind(err, KindInvalidResponse))
}

func TestOpenAITruncated(t *testing.T) {
	p := openAIServer(t, http.StatusOK, chatCompletion(`{"equiv`, "length"), nil)

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	assert.True(t, IsKind(err, KindTruncated))
}

func TestOpenAIErrors(t *testing.T) {
	errBody := map[string]any{"error": map[string]any{"type": "server_error", "message": "nope"}}

	p := openAIServer(t, http.StatusTooManyRequests, errBody, nil)
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	assert.True(t, IsKind(err, KindRateLimited), "got %v", err)

	p = openAIServer(t, http.StatusBadGateway, errBody, nil)
	_, err = p.Generate(context.Background(), Request{Prompt: "x"})
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}
