package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIRetriesServiceUnavailable(t *testing.T) {
	var hits int32
	var captured openai.ChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"model loading","type":"server_error"}}`))
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Stay hydrated."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	chatModel, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", Model: "bio-llm", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAI err: %v", err)
	}
	client, err := NewClient(context.Background(), chatModel, Options{RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}

	got, err := client.Generate(context.Background(), "I feel dizzy", SummaryParams)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if got != "Stay hydrated." {
		t.Fatalf("unexpected reply %q", got)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 requests, got %d", hits)
	}
	if captured.Model != "bio-llm" || captured.MaxTokens != SummaryParams.MaxNewTokens {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Content != "I feel dizzy" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestNewOpenAIRequiresCredentials(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{Model: "m"}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewOpenAI(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing model error")
	}
}
