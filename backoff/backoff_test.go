package backoff_test

import (
	"testing"
	"time"

	"github.com/hooklab/emitter/backoff"
)

func TestNoRetryStopsImmediately(t *testing.T) {
	p := backoff.NoRetry()
	if d := p.NextDelay(); d != backoff.Stop {
		t.Fatalf("NoRetry first call: got %v, want Stop", d)
	}
	if d := p.NextDelay(); d != backoff.Stop {
		t.Fatalf("NoRetry stays stopped: got %v", d)
	}
}

func TestConfigRetryDisabled(t *testing.T) {
	cfg := backoff.DefaultConfig()
	cfg.Retry = false
	if d := cfg.New().NextDelay(); d != backoff.Stop {
		t.Fatalf("Retry=false policy: got %v, want Stop", d)
	}
}

func TestExponentialIncreasesThenCaps(t *testing.T) {
	cfg := backoff.DefaultConfig()
	cfg.RandomizationFactor = 0 // deterministic for the shape assertion

	p := cfg.New()

	var prev time.Duration
	for i := 0; i < 10; i++ {
		d := p.NextDelay()
		if d == backoff.Stop {
			t.Fatalf("policy stopped after %d calls, max elapsed not reached yet", i)
		}
		if d < prev {
			t.Fatalf("delay decreased: %v after %v", d, prev)
		}
		if d > cfg.MaxInterval {
			t.Fatalf("delay %v exceeds max interval %v", d, cfg.MaxInterval)
		}
		prev = d
	}

	// 500ms * 5^n reaches the 180s cap within a handful of steps.
	if prev != cfg.MaxInterval {
		t.Fatalf("delays should cap at %v, last was %v", cfg.MaxInterval, prev)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	cfg := backoff.DefaultConfig()

	p := cfg.New()
	d := p.NextDelay()

	lo := time.Duration(float64(cfg.InitialInterval) * (1 - cfg.RandomizationFactor))
	hi := time.Duration(float64(cfg.InitialInterval) * (1 + cfg.RandomizationFactor))
	if d < lo || d > hi {
		t.Fatalf("first delay %v outside jitter bounds [%v, %v]", d, lo, hi)
	}
}

func TestExponentialStopsAfterMaxElapsed(t *testing.T) {
	cfg := backoff.DefaultConfig()
	cfg.MaxElapsedTime = time.Millisecond

	p := cfg.New()
	time.Sleep(5 * time.Millisecond)

	if d := p.NextDelay(); d != backoff.Stop {
		t.Fatalf("expected Stop after max elapsed time, got %v", d)
	}
	// Stop is permanent.
	if d := p.NextDelay(); d != backoff.Stop {
		t.Fatalf("Stop must be permanent, got %v", d)
	}
}

func TestPoliciesAreIndependent(t *testing.T) {
	cfg := backoff.DefaultConfig()
	cfg.RandomizationFactor = 0

	a := cfg.New()
	b := cfg.New()

	a.NextDelay()
	a.NextDelay()

	// b has consumed nothing; its first delay is still the initial interval.
	if d := b.NextDelay(); d != cfg.InitialInterval {
		t.Fatalf("independent policy polluted: got %v, want %v", d, cfg.InitialInterval)
	}
}
