package ratelimit_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"lofi/internal/ratelimit"
	"lofi/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type brokenStore struct{}

func (brokenStore) Take(context.Context, string, int, time.Duration) (ratelimit.Window, error) {
	return ratelimit.Window{}, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func newSQLLimiter(t *testing.T, clock *fakeClock) *ratelimit.Limiter {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return ratelimit.New(ratelimit.NewSQLStore(store, ratelimit.WithClock(clock.Now)), nil)
}

func TestSQLStoreThirdRequestDenied(t *testing.T) {
	clock := newFakeClock()
	limiter := newSQLLimiter(t, clock)
	ctx := context.Background()

	var decisions []ratelimit.Decision
	for _, step := range []time.Duration{0, 2 * time.Second, 3 * time.Second} {
		clock.Advance(step)
		decision, err := limiter.Admit(ctx, "A", 2, time.Minute)
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		decisions = append(decisions, decision)
	}

	if !decisions[0].Allowed || !decisions[1].Allowed {
		t.Fatalf("expected first two requests admitted, got %+v", decisions)
	}
	if decisions[2].Allowed {
		t.Fatalf("expected third request denied")
	}
	if decisions[2].RetryAfter != 55*time.Second {
		t.Fatalf("expected retry after 55s, got %s", decisions[2].RetryAfter)
	}
	if decisions[1].Count != 2 || decisions[2].Count != 2 {
		t.Fatalf("unexpected counts %+v", decisions)
	}
}

func TestSQLStoreWindowResetsAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	limiter := newSQLLimiter(t, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := limiter.Admit(ctx, "A", 2, time.Minute); !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	if d, _ := limiter.Admit(ctx, "A", 2, time.Minute); d.Allowed {
		t.Fatal("expected denial inside the window")
	}
	if d, _ := limiter.Admit(ctx, "B", 2, time.Minute); !d.Allowed {
		t.Fatal("expected other keys to be unaffected")
	}

	clock.Advance(time.Minute)
	d, err := limiter.Admit(ctx, "A", 2, time.Minute)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("expected fresh window after expiry, got %+v", d)
	}
}

func TestSQLStoreNeverExceedsCeilingPerWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := newSQLLimiter(t, clock)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	const (
		limit  = 3
		window = 10 * time.Second
	)
	var (
		windowStart time.Time
		admitted    int
	)
	for i := 0; i < 200; i++ {
		clock.Advance(time.Duration(rng.Intn(1500)) * time.Millisecond)
		d, err := limiter.Admit(ctx, "caller", limit, window)
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if !d.Allowed {
			continue
		}
		now := clock.Now()
		if windowStart.IsZero() || !now.Before(windowStart.Add(window)) {
			windowStart = now
			admitted = 0
		}
		admitted++
		if admitted > limit {
			t.Fatalf("window starting %s admitted %d requests", windowStart, admitted)
		}
	}
}

func TestSQLStoreConcurrentAdmissions(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	limiter := ratelimit.New(ratelimit.NewSQLStore(store), nil)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Admit(ctx, "shared", 4, time.Minute)
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			if d.Allowed && !d.FailedOpen {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed > 4 {
		t.Fatalf("expected at most 4 admissions, got %d", allowed)
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	limiter := ratelimit.New(brokenStore{}, nil)
	for i := 0; i < 5; i++ {
		d, err := limiter.Admit(context.Background(), "A", 1, time.Minute)
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if !d.Allowed || !d.FailedOpen {
			t.Fatalf("expected fail-open admission, got %+v", d)
		}
	}
}

func TestLimiterFailsOpenWhenDatabaseClosed(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	limiter := ratelimit.New(ratelimit.NewSQLStore(store), nil)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	d, err := limiter.Admit(context.Background(), "A", 1, time.Minute)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !d.Allowed || !d.FailedOpen {
		t.Fatalf("expected fail-open admission, got %+v", d)
	}
}

func TestLimiterRejectsInvalidPolicy(t *testing.T) {
	limiter := ratelimit.New(brokenStore{}, nil)
	cases := []struct {
		limit  int
		window time.Duration
	}{
		{0, time.Minute},
		{-1, time.Minute},
		{5, 0},
	}
	for _, tc := range cases {
		if _, err := limiter.Admit(context.Background(), "A", tc.limit, tc.window); !errors.Is(err, ratelimit.ErrInvalidPolicy) {
			t.Fatalf("limit=%d window=%s: expected ErrInvalidPolicy, got %v", tc.limit, tc.window, err)
		}
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRateLimit(2, 60))
	policy := ratelimit.PolicyFromConfig(cfg)
	if policy.Limit != 2 || policy.Window != time.Minute {
		t.Fatalf("unexpected policy %+v", policy)
	}
}
