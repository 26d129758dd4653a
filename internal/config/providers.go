package config

import (
	"fmt"
	"os"
	"regexp"
	"time"
)

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one LLM backend. CredentialRef is an indirection
// of the form env(NAME); the literal secret never appears in config files.
type ProviderConfig struct {
	Type           string                     `yaml:"type"`
	BaseURL        string                     `yaml:"base_url"`
	CredentialRef  string                     `yaml:"credential_ref"`
	APIVersion     string                     `yaml:"api_version,omitempty"`
	DefaultModel   string                     `yaml:"default_model"`
	FallbackChain  []string                   `yaml:"fallback_chain,omitempty"`
	Timeout        time.Duration              `yaml:"timeout"`
	MaxRetries     int                        `yaml:"max_retries"`
	MaxConcurrent  int                        `yaml:"max_concurrent"`
	Headers        map[string]string          `yaml:"headers,omitempty"`
	Models         map[string]ModelCapability `yaml:"models"`
	DefaultPricing *PriceEntry                `yaml:"default_pricing,omitempty"`
}

// ModelCapability holds the per-model limits and rates used for context-window
// fitting and cost accounting.
type ModelCapability struct {
	ContextWindow   int     `yaml:"context_window"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	InputPer1K      float64 `yaml:"input_per_1k"`
	OutputPer1K     float64 `yaml:"output_per_1k"`
}

type PriceEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

var credentialRefPattern = regexp.MustCompile(`^env\(([A-Za-z_][A-Za-z0-9_]*)\)$`)

// ResolveCredential dereferences an env(NAME) credential reference against the
// process environment. An empty ref resolves to an empty credential, for
// providers that need none (e.g. a local model server).
func ResolveCredential(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	m := credentialRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", fmt.Errorf("malformed credential_ref %q: expected env(NAME)", ref)
	}
	val, ok := os.LookupEnv(m[1])
	if !ok {
		return "", fmt.Errorf("credential_ref %q: environment variable %s is not set", ref, m[1])
	}
	return val, nil
}
