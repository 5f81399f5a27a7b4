package fallback

import (
	"testing"
	"time"
)

func TestPolicy_NextProvider_Order(t *testing.T) {
	t.Parallel()

	p := NewPolicy(func(string) int { return 2 }, func(string) time.Duration { return time.Second })
	order := ProviderOrder{"a", "b", "c"}

	id, ok := p.NextProvider("seg1", order)
	if !ok || id != "a" {
		t.Fatalf("expected a, ok=true, got %s, ok=%v", id, ok)
	}
}

func TestPolicy_NotFound_SkipsProviderPermanently(t *testing.T) {
	t.Parallel()

	p := NewPolicy(func(string) int { return 1 }, func(string) time.Duration { return time.Second })
	order := ProviderOrder{"a", "b"}

	p.Record("seg1", "a", OutcomeNotFound)

	id, ok := p.NextProvider("seg1", order)
	if !ok || id != "b" {
		t.Fatalf("expected fallback to b, got %s, ok=%v", id, ok)
	}
}

func TestPolicy_TransientError_ConsumesRetryBudget(t *testing.T) {
	t.Parallel()

	p := NewPolicy(func(string) int { return 2 }, func(string) time.Duration { return time.Second })
	order := ProviderOrder{"a", "b"}

	p.Record("seg1", "a", OutcomeTransientError)
	id, ok := p.NextProvider("seg1", order)
	if !ok || id != "a" {
		t.Fatalf("expected one retry budget remaining on a, got %s, ok=%v", id, ok)
	}

	p.Record("seg1", "a", OutcomeTransientError)
	id, ok = p.NextProvider("seg1", order)
	if !ok || id != "b" {
		t.Fatalf("expected retries exhausted on a, fallback to b, got %s, ok=%v", id, ok)
	}
}

func TestPolicy_Success_ClearsBookkeeping(t *testing.T) {
	t.Parallel()

	p := NewPolicy(func(string) int { return 1 }, func(string) time.Duration { return time.Second })
	p.Record("seg1", "a", OutcomeTransientError)
	p.Record("seg1", "a", OutcomeSuccess)

	order := ProviderOrder{"a"}
	id, ok := p.NextProvider("seg1", order)
	if !ok || id != "a" {
		t.Fatalf("expected a available again after success reset, got %s, ok=%v", id, ok)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	p := NewPolicy(nil, nil)
	order := ProviderOrder{"a", "b"}

	if p.Exhausted("seg1", order) {
		t.Fatal("expected not exhausted before any attempts")
	}

	p.Record("seg1", "a", OutcomeNotFound)
	if p.Exhausted("seg1", order) {
		t.Fatal("expected not exhausted with b still untried")
	}

	p.Record("seg1", "b", OutcomeNotFound)
	if !p.Exhausted("seg1", order) {
		t.Fatal("expected exhausted once every provider is confirmed missing")
	}
}

func TestPolicy_Backoff_DoublesPerAttempt(t *testing.T) {
	t.Parallel()

	p := NewPolicy(nil, func(string) time.Duration { return time.Second })
	if got := p.Backoff("a", 1); got != time.Second {
		t.Fatalf("attempt 1: expected 1s, got %v", got)
	}
	if got := p.Backoff("a", 2); got != 2*time.Second {
		t.Fatalf("attempt 2: expected 2s, got %v", got)
	}
	if got := p.Backoff("a", 3); got != 4*time.Second {
		t.Fatalf("attempt 3: expected 4s, got %v", got)
	}
}

func TestPolicy_Forget_DropsSegmentBookkeeping(t *testing.T) {
	t.Parallel()

	p := NewPolicy(func(string) int { return 1 }, nil)
	p.Record("seg1", "a", OutcomeNotFound)
	p.Record("seg1", "b", OutcomeTransientError)

	p.Forget("seg1")

	order := ProviderOrder{"a", "b"}
	id, ok := p.NextProvider("seg1", order)
	if !ok || id != "a" {
		t.Fatalf("expected bookkeeping cleared, a available again, got %s, ok=%v", id, ok)
	}
}
