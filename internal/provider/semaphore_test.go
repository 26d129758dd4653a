package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lessonforge/scribe/internal/types"
)

type blockingClient struct {
	inflight atomic.Int64
	peak     atomic.Int64
	release  chan struct{}
}

func (b *blockingClient) Name() string { return "blocking" }

func (b *blockingClient) Generate(ctx context.Context, model, prompt string, params types.Parameters) (*Result, error) {
	cur := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		peak := b.peak.Load()
		if cur <= peak || b.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	<-b.release
	return &Result{Text: "ok"}, nil
}

func TestConcurrencyCap_BoundsInFlight(t *testing.T) {
	inner := &blockingClient{release: make(chan struct{})}
	capped := WithConcurrencyCap(inner, 2)

	var wg sync.WaitGroup
	var rejected atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := capped.Generate(context.Background(), "m", "p", types.Parameters{})
			if err != nil {
				if ClassOf(err) != ClassRateLimited {
					t.Errorf("expected rate_limited for saturated cap, got %v", err)
				}
				rejected.Add(1)
			}
		}()
	}

	// Let goroutines race for slots, then release the two holders.
	for inner.inflight.Load() < 2 {
	}
	close(inner.release)
	wg.Wait()

	if peak := inner.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak)
	}
	if rejected.Load() == 0 {
		t.Error("expected some requests rejected at the cap")
	}
}
