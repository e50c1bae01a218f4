package responsecache

import (
	"context"
	"testing"
)

type fakeLimiter struct {
	allowed      bool
	remaining    int
	availableIn  int
	incremented  []int
	cleared      bool
}

func (f *fakeLimiter) AllowRequest(context.Context, string) (bool, error) { return f.allowed, nil }
func (f *fakeLimiter) IncrementAttempts(_ context.Context, _ string, amount int) error {
	f.incremented = append(f.incremented, amount)
	return nil
}
func (f *fakeLimiter) RemainingAttempts(context.Context, string) (int, error) { return f.remaining, nil }
func (f *fakeLimiter) AvailableIn(context.Context, string) (int, error)      { return f.availableIn, nil }
func (f *fakeLimiter) Clear(context.Context, string) error                  { f.cleared = true; return nil }

func TestManagerGenerateCacheKeyDelegatesToC3(t *testing.T) {
	m := NewManager(nil, &fakeLimiter{})

	k1, err := m.GenerateCacheKey("dataforseo", "serp", map[string]any{"q": "cats"}, "GET", "v3")
	if err != nil {
		t.Fatalf("GenerateCacheKey: %v", err)
	}
	k2, err := m.GenerateCacheKey("dataforseo", "serp", map[string]any{"q": "cats"}, "GET", "v3")
	if err != nil {
		t.Fatalf("GenerateCacheKey: %v", err)
	}
	if k1 != k2 || len(k1) != 64 {
		t.Fatalf("GenerateCacheKey not deterministic/well-formed: %q vs %q", k1, k2)
	}
}

func TestManagerRateLimitWrappers(t *testing.T) {
	limiter := &fakeLimiter{allowed: true, remaining: 3, availableIn: 7}
	m := NewManager(nil, limiter)
	ctx := context.Background()

	allowed, err := m.AllowRequest(ctx, "client")
	if err != nil || !allowed {
		t.Fatalf("AllowRequest = %v, %v", allowed, err)
	}

	if err := m.IncrementAttempts(ctx, "client", 2); err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}
	if len(limiter.incremented) != 1 || limiter.incremented[0] != 2 {
		t.Fatalf("IncrementAttempts did not forward amount: %v", limiter.incremented)
	}

	remaining, err := m.GetRemainingAttempts(ctx, "client")
	if err != nil || remaining != 3 {
		t.Fatalf("GetRemainingAttempts = %v, %v", remaining, err)
	}

	availableIn, err := m.GetAvailableIn(ctx, "client")
	if err != nil || availableIn != 7 {
		t.Fatalf("GetAvailableIn = %v, %v", availableIn, err)
	}

	if err := m.ClearRateLimit(ctx, "client"); err != nil {
		t.Fatalf("ClearRateLimit: %v", err)
	}
	if !limiter.cleared {
		t.Fatal("ClearRateLimit did not forward to limiter")
	}
}
