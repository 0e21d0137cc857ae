package quotes

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	current := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(map[string]Limit{"api": {Requests: 2, Window: time.Minute}})
	limiter.now = func() time.Time { return current }

	if !limiter.Acquire("api") || !limiter.Acquire("api") {
		t.Fatal("requests within budget must pass")
	}
	if limiter.Acquire("api") {
		t.Fatal("third request in window must be rejected")
	}
	if limiter.Remaining("api") != 0 {
		t.Fatalf("expected no remaining budget, got %d", limiter.Remaining("api"))
	}

	current = current.Add(time.Minute)
	if !limiter.Acquire("api") {
		t.Fatal("new window must reset the budget")
	}
	if limiter.Remaining("api") != 1 {
		t.Fatalf("expected 1 remaining, got %d", limiter.Remaining("api"))
	}
}

func TestRateLimiterUnknownProviderUnlimited(t *testing.T) {
	limiter := NewRateLimiter(map[string]Limit{})
	for i := 0; i < 100; i++ {
		if !limiter.Acquire("anything") {
			t.Fatal("providers without limits must never be rejected")
		}
	}
	if limiter.Remaining("anything") != -1 {
		t.Fatal("unknown providers report unlimited budget")
	}
}
