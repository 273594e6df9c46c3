package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  "gpt-4o-mini",
	}
}

func openaiCompletion(content, finish string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
					"finish_reason": finish,
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     40,
				"completion_tokens": 25,
				"total_tokens":      65,
			},
		})
	}
}

func openaiError(status int, code, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "error",
				"message": message,
				"code":    code,
			},
		})
	}
}

func TestOpenAIProvider_HappyPath(t *testing.T) {
	p := newTestOpenAIProvider(t, openaiCompletion("Plants need sunlight to grow.", "stop"))
	resp, err := p.Generate(context.Background(), Request{
		System:    "You are Buddy.",
		Messages:  []Message{{Role: RoleUser, Content: "Why do plants need the sun?"}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Plants need sunlight to grow." {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.InputTokens != 40 || resp.Usage.OutputTokens != 25 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.FinishReason != FinishEnd {
		t.Fatalf("expected finish reason %q, got %q", FinishEnd, resp.FinishReason)
	}
}

func TestOpenAIProvider_ContentFilterIsBlocked(t *testing.T) {
	p := newTestOpenAIProvider(t, openaiCompletion("", "content_filter"))
	resp, err := p.Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "test"}},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Blocked || resp.BlockReason != "content_filter" {
		t.Fatalf("expected blocked response, got %+v", resp)
	}
}

func TestOpenAIProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    ErrorTag
	}{
		{"rate limit", openaiError(http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded"), TagRateLimited},
		{"quota", openaiError(http.StatusTooManyRequests, "insufficient_quota", "You exceeded your current quota"), TagQuotaExceeded},
		{"bad key", openaiError(http.StatusUnauthorized, "invalid_api_key", "Incorrect API key provided"), TagInvalidCredential},
		{"server error", openaiError(http.StatusInternalServerError, "server_error", "Internal server error"), TagUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAIProvider(t, tt.handler)
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "test"}},
				MaxTokens: 100,
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Tag(err); got != tt.want {
				t.Fatalf("Tag = %q, want %q (%v)", got, tt.want, err)
			}
		})
	}
}

func TestOpenAIProvider_ServerErrorIsUnavailable(t *testing.T) {
	p := newTestOpenAIProvider(t, openaiError(http.StatusInternalServerError, "server_error", "boom"))
	_, err := p.Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "test"}},
		MaxTokens: 100,
	})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got: %T (%v)", err, err)
	}
}

func openaiStream(chunks []string, finish string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			data, _ := json.Marshal(map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "gpt-4o-mini",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": c}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		data, _ := json.Marshal(map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{}, "finish_reason": finish}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestOpenAIProvider_Stream(t *testing.T) {
	p := newTestOpenAIProvider(t, openaiStream([]string{"Two ", "plus ", "two"}, "stop"))

	var chunks []string
	resp, err := p.GenerateStream(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "2+2?"}},
		MaxTokens: 100,
	}, func(c string) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(chunks, "") != "Two plus two" || len(chunks) != 3 {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
	if resp.Content != "Two plus two" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Blocked {
		t.Fatal("stream should not be blocked")
	}
}

func TestOpenAIProvider_StreamContentFilter(t *testing.T) {
	p := newTestOpenAIProvider(t, openaiStream([]string{"Once "}, "content_filter"))

	resp, err := p.GenerateStream(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "story"}},
		MaxTokens: 100,
	}, func(string) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Blocked || resp.FinishReason != FinishSafety {
		t.Fatalf("expected blocked stream, got %+v", resp)
	}
}

func TestOpenAIProvider_ModelID(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o-mini"}
	if p.ModelID() != "gpt-4o-mini" {
		t.Fatalf("expected 'gpt-4o-mini', got %q", p.ModelID())
	}
}

func TestOpenAIProvider_BaseURLOverride(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o",
		BaseURL: "https://example.test/v1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "gpt-4o" {
		t.Fatalf("expected 'gpt-4o', got %q", p.ModelID())
	}
}
