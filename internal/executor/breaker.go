package executor

import (
	"sync"
	"time"

	"github.com/lessonforge/scribe/internal/config"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker is a per-provider circuit breaker. Consecutive failures open the
// circuit; after the probe interval one request is allowed through, and its
// result decides whether the circuit closes again.
type breaker struct {
	mu sync.Mutex

	state    breakerState
	failures int
	openedAt time.Time

	failureThreshold int
	probeInterval    time.Duration
}

// current returns the state, transitioning open → half-open once the probe
// interval has elapsed. Must be called with mu held.
func (b *breaker) current() breakerState {
	if b.state == breakerOpen && time.Since(b.openedAt) >= b.probeInterval {
		b.state = breakerHalfOpen
	}
	return b.state
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current() != breakerOpen
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerClosed
	}
	b.failures = 0
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	switch b.state {
	case breakerClosed:
		if b.failures >= b.failureThreshold {
			b.state = breakerOpen
			b.openedAt = time.Now()
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// BreakerSet lazily creates one circuit breaker per provider.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      config.CircuitBreakerConfig
}

func NewBreakerSet(cfg config.CircuitBreakerConfig) *BreakerSet {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryProbeInterval <= 0 {
		cfg.RecoveryProbeInterval = 15 * time.Second
	}
	return &BreakerSet{
		breakers: make(map[string]*breaker),
		cfg:      cfg,
	}
}

func (s *BreakerSet) get(provider string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[provider]
	if !ok {
		b = &breaker{
			failureThreshold: s.cfg.FailureThreshold,
			probeInterval:    s.cfg.RecoveryProbeInterval,
		}
		s.breakers[provider] = b
	}
	return b
}

// Allow reports whether the provider's circuit admits a request.
func (s *BreakerSet) Allow(provider string) bool { return s.get(provider).allow() }

// RecordSuccess feeds a successful call into the provider's circuit.
func (s *BreakerSet) RecordSuccess(provider string) { s.get(provider).recordSuccess() }

// RecordFailure feeds a failed call into the provider's circuit.
func (s *BreakerSet) RecordFailure(provider string) { s.get(provider).recordFailure() }

// State returns the provider's circuit state name, for health endpoints.
func (s *BreakerSet) State(provider string) string {
	b := s.get(provider)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current().String()
}
