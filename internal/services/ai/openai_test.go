package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
)

const completionFixture = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1762300000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "[{\"title\":\"Review PR #42\"}]"}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newTestProvider(t *testing.T, cfg ProviderConfig, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL
	return NewOpenAIProvider(cfg, option.WithMaxRetries(0))
}

func TestOpenAIProvider_GenerateTodos(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		cfg             ProviderConfig
		wantTemperature bool
	}{
		{"bounded tokens and temperature", ProviderConfig{MaxTokens: 1500, Temperature: 0.3}, true},
		{"zero temperature omitted", ProviderConfig{MaxTokens: 1500}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var body map[string]any
			p := newTestProvider(t, tt.cfg, func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
					t.Errorf("Unexpected path %s", r.URL.Path)
				}
				raw, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(raw, &body); err != nil {
					t.Errorf("Failed to decode request: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(completionFixture))
			})

			got, err := p.GenerateTodos(context.Background(), "PROMPT")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != `[{"title":"Review PR #42"}]` {
				t.Errorf("Unexpected content %q", got)
			}
			if body["model"] != DefaultOpenAIModel {
				t.Errorf("Expected default model, got %v", body["model"])
			}
			if body["max_completion_tokens"] != float64(1500) {
				t.Errorf("Expected max_completion_tokens 1500, got %v", body["max_completion_tokens"])
			}
			_, hasTemperature := body["temperature"]
			if hasTemperature != tt.wantTemperature {
				t.Errorf("Expected temperature present=%v, body=%v", tt.wantTemperature, body)
			}
			messages, _ := body["messages"].([]any)
			if len(messages) != 2 {
				t.Fatalf("Expected system and user messages, got %v", body["messages"])
			}
			if user, _ := messages[1].(map[string]any); user["content"] != "PROMPT" {
				t.Errorf("Expected prompt as user message, got %v", messages[1])
			}
		})
	}
}

func TestOpenAIProvider_GenerateTodosErrors(t *testing.T) {
	t.Parallel()

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		p := newTestProvider(t, ProviderConfig{}, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
		})
		_, err := p.GenerateTodos(context.Background(), "PROMPT")
		if !IsRateLimitError(err) {
			t.Fatalf("Expected rate limit error, got %v", err)
		}
		if !errors.Is(err, ErrRateLimited) {
			t.Error("Expected errors.Is(err, ErrRateLimited)")
		}
		if IsQuotaError(err) {
			t.Error("Expected rate limit not to be a quota error")
		}
	})

	t.Run("quota exhausted", func(t *testing.T) {
		t.Parallel()
		p := newTestProvider(t, ProviderConfig{}, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
		})
		_, err := p.GenerateTodos(context.Background(), "PROMPT")
		if !IsQuotaError(err) {
			t.Fatalf("Expected quota error, got %v", err)
		}
		if IsRateLimitError(err) {
			t.Error("Expected quota error not to be retried as a rate limit")
		}
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()
		p := newTestProvider(t, ProviderConfig{}, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
		})
		if _, err := p.GenerateTodos(context.Background(), "PROMPT"); err == nil || err.Error() != ErrNoChoicesInResponse {
			t.Errorf("Expected %q, got %v", ErrNoChoicesInResponse, err)
		}
	})
}

func TestProviderRegistry(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	if _, err := r.GetProvider("openai", ProviderConfig{APIKey: "sk-test"}); err != nil {
		t.Errorf("Expected openai provider, got %v", err)
	}
	_, err := r.GetProvider("unknown", ProviderConfig{})
	var notFound *ErrProviderNotFound
	if !errors.As(err, &notFound) || notFound.Name != "unknown" {
		t.Errorf("Expected ErrProviderNotFound, got %v", err)
	}
}
