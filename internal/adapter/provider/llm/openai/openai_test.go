package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

func TestCompleteSendsExpectedRequest(t *testing.T) {
	var got apiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(apiResponse{
			Model: "deepseek-chat",
			Choices: []apiChoice{{
				Message:      apiMessage{Role: "assistant", Content: "“你好”", ReasoningContent: "thinking"},
				FinishReason: "stop",
			}},
			Usage: apiUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model: "deepseek-chat",
		Messages: []provider.Message{
			{Role: "system", Content: "人格"},
			{Role: "user", Content: "你好"},
		},
		Temperature: 1.0,
		MaxTokens:   8192,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.Model != "deepseek-chat" || got.Stream {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 1.0 {
		t.Errorf("temperature not forwarded: %+v", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 8192 {
		t.Errorf("max_tokens not forwarded: %+v", got.MaxTokens)
	}
	if got.ResponseFormat != nil {
		t.Error("response_format must be absent without JSONOnly")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("messages malformed: %+v", got.Messages)
	}

	if resp.Content != "“你好”" || resp.ReasoningContent != "thinking" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage not forwarded: %+v", resp.Usage)
	}
}

func TestCompleteJSONOnlySetsResponseFormat(t *testing.T) {
	var got apiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(apiResponse{
			Choices: []apiChoice{{Message: apiMessage{Content: "{}"}}},
		})
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL})
	if _, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "deepseek-chat",
		Messages: []provider.Message{{Role: "user", Content: "整理"}},
		JSONOnly: true,
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("json_object response_format not requested: %+v", got.ResponseFormat)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "deepseek-chat",
		Messages: []provider.Message{{Role: "user", Content: "你好"}},
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{})
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := p.Complete(context.Background(), &provider.CompletionRequest{
		Model:    "deepseek-chat",
		Messages: []provider.Message{{Role: "user", Content: "你好"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
