package executor

import (
	"testing"
	"time"

	"github.com/lessonforge/scribe/internal/config"
)

func testBreakerSet(threshold int, probe time.Duration) *BreakerSet {
	return NewBreakerSet(config.CircuitBreakerConfig{
		FailureThreshold:      threshold,
		RecoveryProbeInterval: probe,
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	s := testBreakerSet(3, time.Minute)

	for i := 0; i < 2; i++ {
		s.RecordFailure("alpha")
	}
	if !s.Allow("alpha") {
		t.Fatal("circuit should still be closed below threshold")
	}

	s.RecordFailure("alpha")
	if s.Allow("alpha") {
		t.Fatal("circuit should be open at threshold")
	}
	if got := s.State("alpha"); got != "open" {
		t.Errorf("expected state open, got %s", got)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	s := testBreakerSet(3, time.Minute)

	s.RecordFailure("alpha")
	s.RecordFailure("alpha")
	s.RecordSuccess("alpha")
	s.RecordFailure("alpha")
	s.RecordFailure("alpha")

	if !s.Allow("alpha") {
		t.Fatal("success should have reset the consecutive failure count")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	s := testBreakerSet(1, 10*time.Millisecond)

	s.RecordFailure("alpha")
	if s.Allow("alpha") {
		t.Fatal("circuit should be open")
	}

	time.Sleep(20 * time.Millisecond)
	if !s.Allow("alpha") {
		t.Fatal("circuit should admit a probe after the recovery interval")
	}
	if got := s.State("alpha"); got != "half_open" {
		t.Errorf("expected state half_open, got %s", got)
	}

	s.RecordSuccess("alpha")
	if got := s.State("alpha"); got != "closed" {
		t.Errorf("expected state closed after successful probe, got %s", got)
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	s := testBreakerSet(1, 10*time.Millisecond)

	s.RecordFailure("alpha")
	time.Sleep(20 * time.Millisecond)
	if !s.Allow("alpha") {
		t.Fatal("circuit should admit a probe")
	}

	s.RecordFailure("alpha")
	if s.Allow("alpha") {
		t.Fatal("failed probe should reopen the circuit")
	}
}

func TestBreakersAreIndependentPerProvider(t *testing.T) {
	s := testBreakerSet(1, time.Minute)

	s.RecordFailure("alpha")
	if s.Allow("alpha") {
		t.Fatal("alpha circuit should be open")
	}
	if !s.Allow("beta") {
		t.Fatal("beta circuit should be unaffected")
	}
}
