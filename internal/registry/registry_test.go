package registry

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lessonforge/scribe/internal/config"
)

func testProvidersConfig() *config.ProvidersConfig {
	return &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"openai": {
				Type:          "openai",
				BaseURL:       "https://api.openai.com/v1",
				CredentialRef: "env(SCRIBE_TEST_OPENAI_KEY)",
				DefaultModel:  "gpt-4o-mini",
				FallbackChain: []string{"anthropic"},
				Timeout:       30 * time.Second,
				MaxRetries:    2,
				MaxConcurrent: 4,
				Models: map[string]config.ModelCapability{
					"gpt-4o-mini": {ContextWindow: 128000, MaxOutputTokens: 16384, InputPer1K: 0.15, OutputPer1K: 0.6},
				},
			},
			"anthropic": {
				Type:          "anthropic",
				BaseURL:       "https://api.anthropic.com/v1",
				CredentialRef: "env(SCRIBE_TEST_ANTHROPIC_KEY)",
				DefaultModel:  "claude-sonnet",
				Timeout:       30 * time.Second,
				MaxRetries:    1,
				MaxConcurrent: 4,
				Models: map[string]config.ModelCapability{
					"claude-sonnet": {ContextWindow: 200000, MaxOutputTokens: 8192, InputPer1K: 3.0, OutputPer1K: 15.0},
				},
			},
		},
	}
}

func setTestKeys(t *testing.T) {
	t.Helper()
	t.Setenv("SCRIBE_TEST_OPENAI_KEY", "sk-openai")
	t.Setenv("SCRIBE_TEST_ANTHROPIC_KEY", "sk-anthropic")
}

func TestRegistry_Lookups(t *testing.T) {
	setTestKeys(t)
	r, err := New(testProvidersConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pc, err := r.Provider("openai")
	if err != nil {
		t.Fatalf("Provider failed: %v", err)
	}
	if pc.DefaultModel != "gpt-4o-mini" {
		t.Errorf("unexpected default model %s", pc.DefaultModel)
	}

	cap, err := r.Model("anthropic", "claude-sonnet")
	if err != nil {
		t.Fatalf("Model failed: %v", err)
	}
	if cap.ContextWindow != 200000 {
		t.Errorf("expected window 200000, got %d", cap.ContextWindow)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	setTestKeys(t)
	r, err := New(testProvidersConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := r.Provider("mistral"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Model("openai", "gpt-5"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Model("mistral", "large"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown provider, got %v", err)
	}
}

func TestRegistry_ValidationFailures(t *testing.T) {
	setTestKeys(t)

	t.Run("unresolvable credential", func(t *testing.T) {
		cfg := testProvidersConfig()
		os.Unsetenv("SCRIBE_TEST_OPENAI_KEY")
		p := cfg.Providers["openai"]
		p.CredentialRef = "env(SCRIBE_MISSING_KEY)"
		cfg.Providers["openai"] = p
		if _, err := New(cfg); err == nil {
			t.Error("expected startup error for unresolvable credential ref")
		}
	})

	t.Run("dangling fallback", func(t *testing.T) {
		cfg := testProvidersConfig()
		p := cfg.Providers["openai"]
		p.FallbackChain = []string{"nonexistent"}
		cfg.Providers["openai"] = p
		if _, err := New(cfg); err == nil {
			t.Error("expected startup error for dangling fallback provider")
		}
	})

	t.Run("negative pricing", func(t *testing.T) {
		cfg := testProvidersConfig()
		p := cfg.Providers["openai"]
		p.Models["gpt-4o-mini"] = config.ModelCapability{ContextWindow: 128000, InputPer1K: -1}
		cfg.Providers["openai"] = p
		if _, err := New(cfg); err == nil {
			t.Error("expected startup error for negative capability values")
		}
	})

	t.Run("default model not in catalogue", func(t *testing.T) {
		cfg := testProvidersConfig()
		p := cfg.Providers["openai"]
		p.DefaultModel = "gpt-unknown"
		cfg.Providers["openai"] = p
		if _, err := New(cfg); err == nil {
			t.Error("expected startup error for unknown default model")
		}
	})
}
