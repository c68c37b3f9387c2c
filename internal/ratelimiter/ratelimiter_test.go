package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond uint
		burst     uint
		wantBurst int
		unlimited bool
	}{
		{name: "explicit burst", perSecond: 100, burst: 200, wantBurst: 200},
		{name: "burst defaults to rate", perSecond: 50, burst: 0, wantBurst: 50},
		{name: "unlimited", perSecond: 0, burst: 0, wantBurst: unlimitedRate, unlimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if limiter.limiter.Burst() != tt.wantBurst {
				t.Errorf("burst = %d, want %d", limiter.limiter.Burst(), tt.wantBurst)
			}
			if limiter.Unlimited() != tt.unlimited {
				t.Errorf("unlimited = %v, want %v", limiter.Unlimited(), tt.unlimited)
			}
		})
	}
}

func TestAllowThrottlesAcceptBurst(t *testing.T) {
	limiter := New(10, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Fatalf("accept %d should be allowed within burst", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("accept should be throttled once the burst is spent")
	}

	time.Sleep(110 * time.Millisecond)

	if !limiter.Allow() {
		t.Fatal("accept should be allowed after refill")
	}
}

func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("expected an error when the deadline expires before a token")
	}
}

func TestSetLimit(t *testing.T) {
	limiter := New(10, 10)
	limiter.SetLimit(100)

	if got := limiter.limiter.Burst(); got != 100 {
		t.Errorf("burst = %d, want 100", got)
	}

	limiter.SetLimit(0)
	if !limiter.Unlimited() {
		t.Error("expected unlimited after SetLimit(0)")
	}
}

func TestSetBurstKeptWhenLarger(t *testing.T) {
	limiter := New(10, 40)
	limiter.SetLimit(20)

	if got := limiter.limiter.Burst(); got != 40 {
		t.Errorf("burst = %d, want 40", got)
	}

	limiter.SetBurst(3)
	if got := limiter.limiter.Burst(); got != 3 {
		t.Errorf("burst = %d, want 3", got)
	}
}

func TestTokens(t *testing.T) {
	limiter := New(10, 4)
	limiter.Allow()
	limiter.Allow()

	if tokens := limiter.Tokens(); tokens > 2.5 || tokens < 1.5 {
		t.Errorf("tokens = %.2f, want about 2", tokens)
	}
}

func TestUnlimitedNeverThrottles(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 100000; i++ {
		if !limiter.Allow() {
			t.Fatalf("accept %d throttled by unlimited limiter", i)
		}
	}
}

func BenchmarkAllow(b *testing.B) {
	limiter := New(0, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}
