package transport

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstThenThrottles(t *testing.T) {
	rl := NewRateLimiter(10, 2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait burst token %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("burst tokens took %v, expected near-instant", elapsed)
	}

	start = time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait beyond burst: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected throttling beyond burst, only waited %v", elapsed)
	}
}

func TestRateLimiterZeroRateDisablesLimiting(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
}

func TestRateLimiterRespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(cancelCtx); err == nil {
		t.Fatal("expected Wait to fail once the context deadline is shorter than the refill interval")
	}
}
