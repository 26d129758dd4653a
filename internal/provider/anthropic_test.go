package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lessonforge/scribe/internal/config"
	"github.com/lessonforge/scribe/internal/types"
)

func anthropicTestServer(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.ProviderConfig{Type: "anthropic", BaseURL: srv.URL}
	return NewAnthropicClient("anthropic", cfg, "sk-ant", srv.Client())
}

func TestAnthropicClient_Generate(t *testing.T) {
	var gotKey, gotVersion string
	var gotBody anthropicRequestBody
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"model": "claude-sonnet",
			"content": []map[string]string{
				{"type": "text", "text": "a lesson plan"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 200, "output_tokens": 150},
		})
	})

	maxTokens := 1024
	res, err := client.Generate(context.Background(), "claude-sonnet", "plan a lesson", types.Parameters{MaxTokens: &maxTokens})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Text != "a lesson plan" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.InputTokens != 200 || res.OutputTokens != 150 {
		t.Errorf("unexpected usage %d/%d", res.InputTokens, res.OutputTokens)
	}
	if gotKey != "sk-ant" {
		t.Errorf("unexpected api key %q", gotKey)
	}
	if gotVersion != defaultAnthropicVersion {
		t.Errorf("unexpected version %q", gotVersion)
	}
	if gotBody.MaxTokens != 1024 {
		t.Errorf("max_tokens = %d, want 1024", gotBody.MaxTokens)
	}
}

func TestAnthropicClient_DefaultMaxTokens(t *testing.T) {
	var gotBody anthropicRequestBody
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "ok"}},
			"usage":   map[string]int{"input_tokens": 1, "output_tokens": 1},
		})
	})

	if _, err := client.Generate(context.Background(), "claude-sonnet", "p", types.Parameters{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gotBody.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", gotBody.MaxTokens, anthropicDefaultMaxTokens)
	}
}

func TestAnthropicClient_ErrorClassification(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529) // anthropic overloaded
	})

	_, err := client.Generate(context.Background(), "claude-sonnet", "p", types.Parameters{})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if pe.Class != ClassUnavailable {
		t.Errorf("class = %s, want %s", pe.Class, ClassUnavailable)
	}
	if pe.Provider != "anthropic" {
		t.Errorf("provider = %s, want anthropic", pe.Provider)
	}
}
