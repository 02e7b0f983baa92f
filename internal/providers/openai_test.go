package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingTransport struct{ calls *atomic.Int32 }

func (c countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

func openAIServer(t *testing.T, status int, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if capture != nil {
			json.NewDecoder(r.Body).Decode(capture)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "slow down", "type": "rate_limit"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
}

func TestOpenAIClient_Chat(t *testing.T) {
	t.Run("plain chat", func(t *testing.T) {
		var body map[string]any
		server := openAIServer(t, http.StatusOK, "hello", &body)
		defer server.Close()

		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{
				{Role: RoleSystem, Content: "be brief"},
				{Role: RoleUser, Content: "hi"},
			},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "hello" || result.TotalTokens != 7 {
			t.Errorf("result = %+v", result)
		}
		if body["model"] != openAIDefaultModel {
			t.Errorf("model = %v", body["model"])
		}
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("messages = %v", body["messages"])
		}
		if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
			t.Errorf("first message = %v", msgs[0])
		}
	})

	t.Run("structured output", func(t *testing.T) {
		var body map[string]any
		server := openAIServer(t, http.StatusOK, `{"hooks":["one"]}`, &body)
		defer server.Close()

		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages:       []Message{{Role: RoleUser, Content: "hooks"}},
			ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: hooksSchema},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		rf, _ := body["response_format"].(map[string]any)
		if rf["type"] != "json_schema" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		if string(result.ParsedJSON) != `{"hooks":["one"]}` {
			t.Errorf("ParsedJSON = %s", result.ParsedJSON)
		}
	})

	t.Run("rate limited without retries", func(t *testing.T) {
		inner := openAIServer(t, http.StatusTooManyRequests, "", nil)
		defer inner.Close()

		var calls atomic.Int32
		client := NewOpenAIClient(OpenAIConfig{
			APIKey:     "k",
			BaseURL:    inner.URL,
			HTTPClient: &http.Client{Transport: countingTransport{&calls}},
		})
		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "x"}},
		})
		var rle *RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("error = %v, want RateLimitError", err)
		}
		if rle.RetryAfter != time.Second {
			t.Errorf("RetryAfter = %v, want 1s", rle.RetryAfter)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}
