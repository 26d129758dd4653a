package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAlias is returned when an alias cannot be resolved to a registered
// provider and model. Resolution never silently substitutes a default model.
var ErrUnknownAlias = errors.New("unknown model alias")

// Resolver maps user-facing model aliases to concrete (provider, model) pairs.
// A "provider/model" literal is accepted as an escape hatch for advanced
// callers and validated against the registry instead of the alias table.
type Resolver struct {
	registry *Registry
	aliases  map[string]string
}

func NewResolver(registry *Registry, aliases map[string]string) *Resolver {
	return &Resolver{registry: registry, aliases: aliases}
}

// Resolve is pure and side-effect free.
func (r *Resolver) Resolve(alias string) (provider, model string, err error) {
	target, ok := r.aliases[alias]
	if !ok {
		if strings.Contains(alias, "/") {
			target = alias
		} else {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
		}
	}

	provider, model, ok = strings.Cut(target, "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("%w: %q maps to malformed target %q", ErrUnknownAlias, alias, target)
	}

	if _, err := r.registry.Model(provider, model); err != nil {
		return "", "", fmt.Errorf("%w: %q resolves to %s/%s which is not registered", ErrUnknownAlias, alias, provider, model)
	}
	return provider, model, nil
}

// Aliases returns the alias table entries that currently resolve, for
// discovery endpoints.
func (r *Resolver) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for alias, target := range r.aliases {
		if _, _, err := r.Resolve(alias); err == nil {
			out[alias] = target
		}
	}
	return out
}
