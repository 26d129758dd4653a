package registry

import (
	"errors"
	"fmt"

	"github.com/lessonforge/scribe/internal/config"
)

// ErrNotFound is returned when a provider or model is not in the catalogue.
// It is a recoverable condition the caller must handle, never a fatal abort.
var ErrNotFound = errors.New("not found")

// Registry holds the provider catalogue: connection parameters, default
// models, and model capability records. It is built once from configuration
// and read-only afterwards; a config reload builds a replacement registry.
type Registry struct {
	providers map[string]config.ProviderConfig
}

// New validates the providers config and builds a registry. Validation errors
// (unresolvable credential refs, dangling fallback entries, negative capability
// numbers) fail startup rather than surfacing on the first request.
func New(cfg *config.ProvidersConfig) (*Registry, error) {
	providers := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base_url is required", name)
		}
		if _, err := config.ResolveCredential(pc.CredentialRef); err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		if pc.DefaultModel != "" {
			if _, ok := pc.Models[pc.DefaultModel]; !ok {
				return nil, fmt.Errorf("provider %s: default_model %s is not in the model catalogue", name, pc.DefaultModel)
			}
		}
		for model, cap := range pc.Models {
			if cap.ContextWindow < 0 || cap.MaxOutputTokens < 0 || cap.InputPer1K < 0 || cap.OutputPer1K < 0 {
				return nil, fmt.Errorf("provider %s: model %s has negative capability values", name, model)
			}
		}
		for _, fb := range pc.FallbackChain {
			if _, ok := cfg.Providers[fb]; !ok {
				return nil, fmt.Errorf("provider %s: fallback_chain references unknown provider %s", name, fb)
			}
		}
		providers[name] = pc
	}
	return &Registry{providers: providers}, nil
}

// Provider returns the configuration for a named provider.
func (r *Registry) Provider(name string) (config.ProviderConfig, error) {
	pc, ok := r.providers[name]
	if !ok {
		return config.ProviderConfig{}, fmt.Errorf("provider %s: %w", name, ErrNotFound)
	}
	return pc, nil
}

// Model returns the capability record for a model within a provider. A model
// absent from the catalogue cannot be selected.
func (r *Registry) Model(provider, model string) (config.ModelCapability, error) {
	pc, ok := r.providers[provider]
	if !ok {
		return config.ModelCapability{}, fmt.Errorf("provider %s: %w", provider, ErrNotFound)
	}
	cap, ok := pc.Models[model]
	if !ok {
		return config.ModelCapability{}, fmt.Errorf("model %s/%s: %w", provider, model, ErrNotFound)
	}
	return cap, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
