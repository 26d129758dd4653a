package provider

import (
	"context"

	"github.com/lessonforge/scribe/internal/types"
)

// cappedClient bounds the number of simultaneous in-flight calls one provider
// receives, so one provider's quota exhaustion cannot starve the others.
// Saturation is classified as rate-limited, which sends the caller through
// the normal backoff path without burning a vendor request.
type cappedClient struct {
	inner Client
	slots chan struct{}
}

// WithConcurrencyCap wraps a client with a counting semaphore of the given size.
func WithConcurrencyCap(inner Client, max int) Client {
	return &cappedClient{
		inner: inner,
		slots: make(chan struct{}, max),
	}
}

func (c *cappedClient) Name() string { return c.inner.Name() }

func (c *cappedClient) Generate(ctx context.Context, model, prompt string, params types.Parameters) (*Result, error) {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
		return c.inner.Generate(ctx, model, prompt, params)
	case <-ctx.Done():
		return nil, transportError(ctx, c.inner.Name(), ctx.Err())
	default:
		return nil, &Error{
			Class:    ClassRateLimited,
			Provider: c.inner.Name(),
			Message:  "provider concurrency cap reached",
		}
	}
}
