package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lessonforge/scribe/internal/config"
	"github.com/lessonforge/scribe/internal/executor"
	"github.com/lessonforge/scribe/internal/provider"
	"github.com/lessonforge/scribe/internal/registry"
	"github.com/lessonforge/scribe/internal/types"
	"github.com/lessonforge/scribe/internal/usage"
	"github.com/lessonforge/scribe/internal/window"
)

type stubClient struct {
	name string
	fn   func(model, prompt string) (*provider.Result, error)
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Generate(ctx context.Context, model, prompt string, params types.Parameters) (*provider.Result, error) {
	return s.fn(model, prompt)
}

func newTestHandler(t *testing.T, fn func(model, prompt string) (*provider.Result, error)) (*Handler, *usage.Tracker) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"openai": {
				Type:         "openai",
				BaseURL:      "http://openai.test",
				DefaultModel: "gpt-4o-mini",
				Models: map[string]config.ModelCapability{
					"gpt-4o-mini": {
						ContextWindow:   128000,
						MaxOutputTokens: 4096,
						InputPer1K:      0.15,
						OutputPer1K:     0.6,
					},
				},
			},
		},
	}
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	resolver := registry.NewResolver(reg, map[string]string{
		"quiz-writer": "openai/gpt-4o-mini",
	})

	clients := provider.NewClients()
	clients.Register("openai", &stubClient{name: "openai", fn: fn})

	tracker := usage.NewTracker(nil, logger)
	exec := executor.New(
		reg,
		resolver,
		window.NewManager(config.WindowConfig{TruncateFrom: "head"}, logger),
		clients,
		tracker,
		executor.Options{
			Routing: config.RoutingConfig{
				DefaultMaxRetries: 1,
				Backoff:           config.BackoffConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			},
			Logger: logger,
		},
	)

	handler := NewHandler(
		func() *executor.Executor { return exec },
		func() *registry.Resolver { return resolver },
		tracker,
	)
	return handler, tracker
}

func okStub(model, prompt string) (*provider.Result, error) {
	return &provider.Result{Text: "three quiz questions", InputTokens: 50, OutputTokens: 30}, nil
}

func TestGenerateEndpoint(t *testing.T) {
	handler, tracker := newTestHandler(t, okStub)

	body := `{"prompt":"write a quiz about fractions","model_alias":"quiz-writer","workflow_id":"wf-9","step_name":"quiz"}`
	r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.Generate(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result types.GenerationResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result.Text != "three quiz questions" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if result.Provider != "openai" || result.Model != "gpt-4o-mini" {
		t.Errorf("unexpected routing %s/%s", result.Provider, result.Model)
	}
	if tracker.Count() != 1 {
		t.Errorf("expected one recorded outcome, got %d", tracker.Count())
	}
}

func TestGenerateValidation(t *testing.T) {
	handler, _ := newTestHandler(t, okStub)

	tests := []struct {
		name string
		body string
	}{
		{"missing prompt", `{"model_alias":"quiz-writer"}`},
		{"missing alias", `{"prompt":"hello"}`},
		{"negative max_tokens", `{"prompt":"hello","model_alias":"quiz-writer","parameters":{"max_tokens":-1}}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.Generate(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestGenerateUnknownAlias(t *testing.T) {
	handler, tracker := newTestHandler(t, okStub)

	body := `{"prompt":"hello","model_alias":"no-such-alias"}`
	r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.Generate(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if tracker.Count() != 1 {
		t.Errorf("expected the failed request to be recorded, got %d outcomes", tracker.Count())
	}
}

func TestGenerateProviderExhausted(t *testing.T) {
	handler, _ := newTestHandler(t, func(model, prompt string) (*provider.Result, error) {
		return nil, &provider.Error{Class: provider.ClassUnavailable, Provider: "openai", Message: "down"}
	})

	body := `{"prompt":"hello","model_alias":"quiz-writer"}`
	r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.Generate(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestUsageReportEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t, okStub)

	for _, wf := range []string{"wf-a", "wf-a", "wf-b"} {
		body := `{"prompt":"hello","model_alias":"quiz-writer","workflow_id":"` + wf + `"}`
		r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
		handler.Generate(httptest.NewRecorder(), r)
	}

	r := httptest.NewRequest(http.MethodGet, "/v1/usage/report?workflow_id=wf-a", nil)
	w := httptest.NewRecorder()
	handler.UsageReport(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var report types.UsageReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if report.Totals.Count != 2 {
		t.Errorf("expected 2 outcomes for wf-a, got %d", report.Totals.Count)
	}
}

func TestListAliasesEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t, okStub)

	r := httptest.NewRequest(http.MethodGet, "/v1/aliases", nil)
	w := httptest.NewRecorder()
	handler.ListAliases(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp aliasListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Aliases["quiz-writer"] != "openai/gpt-4o-mini" {
		t.Errorf("unexpected aliases %v", resp.Aliases)
	}
}
