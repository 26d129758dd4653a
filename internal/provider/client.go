package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/lessonforge/scribe/internal/config"
	"github.com/lessonforge/scribe/internal/types"
)

// Result is the normalized outcome of a successful generation call. Token
// counts are the vendor-reported usage numbers.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client generates content against one vendor API. Implementations translate
// the canonical request into the vendor's wire format and normalize responses
// and failures; callers never see vendor-specific types.
type Client interface {
	Name() string
	Generate(ctx context.Context, model, prompt string, params types.Parameters) (*Result, error)
}

// Clients is an immutable name → client map built from configuration.
type Clients struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewClients() *Clients {
	return &Clients{clients: make(map[string]Client)}
}

func (c *Clients) Register(name string, client Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[name] = client
}

func (c *Clients) Get(name string) (Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[name]
	return client, ok
}

// BuildFromConfig constructs one client per configured provider. Unknown
// provider types get the OpenAI-compatible adapter, which covers most local
// model servers. Credential refs were validated at startup; a resolution
// failure here means the environment changed underneath us, and the provider
// is skipped rather than registered with an empty key.
func BuildFromConfig(cfg *config.ProvidersConfig, defaultTimeout time.Duration) *Clients {
	clients := NewClients()
	for name, pc := range cfg.Providers {
		timeout := pc.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient := &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        pc.MaxConcurrent,
				MaxIdleConnsPerHost: pc.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		apiKey, err := config.ResolveCredential(pc.CredentialRef)
		if err != nil {
			continue
		}

		var client Client
		switch pc.Type {
		case "anthropic":
			client = NewAnthropicClient(name, pc, apiKey, httpClient)
		default:
			client = NewOpenAIClient(name, pc, apiKey, httpClient)
		}

		if pc.MaxConcurrent > 0 {
			client = WithConcurrencyCap(client, pc.MaxConcurrent)
		}
		clients.Register(name, client)
	}
	return clients
}
