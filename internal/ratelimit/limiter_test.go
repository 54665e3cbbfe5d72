package ratelimit

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
)

func testLogger() logging.ContextLogger {
	return logging.NewLoggerFromConfig(&logging.Config{
		Level:  "debug",
		Format: logging.FormatText,
		Output: io.Discard,
	})
}

func newTestLimiter(t *testing.T, cfg *config.RateLimitConfig) *Limiter {
	t.Helper()
	limiter := NewLimiter(cfg, testLogger())
	if limiter == nil {
		t.Fatal("Expected non-nil limiter")
	}
	t.Cleanup(limiter.Stop)
	return limiter
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(&config.RateLimitConfig{Enabled: false}, testLogger()) != nil {
		t.Error("Expected nil limiter when disabled")
	}
	if NewLimiter(nil, testLogger()) != nil {
		t.Error("Expected nil limiter for nil config")
	}

	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      10,
		PerToolLimits: map[string]int{
			"startReview": 30,
			"playMove":    6,
		},
	})
	if limiter.globalBucket.capacity != 10 {
		t.Errorf("Expected global burst 10, got %d", limiter.globalBucket.capacity)
	}
	if got := limiter.toolBuckets["startReview"].capacity; got != 5 {
		t.Errorf("Expected startReview burst 5, got %d", got)
	}
	if got := limiter.toolBuckets["playMove"].capacity; got != 1 {
		t.Errorf("Expected playMove burst floored to 1, got %d", got)
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Allow("anyone", "startReview"); err != nil {
		t.Errorf("Nil limiter rejected a call: %v", err)
	}
	if limiter.Wait() != 0 {
		t.Error("Nil limiter should never wait")
	}
	if limiter.Status().Enabled {
		t.Error("Nil limiter should report disabled")
	}
	limiter.Reset()
	limiter.Stop()
}

func TestGlobalLimit(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstSize:      5,
	})

	for i := 0; i < 5; i++ {
		if err := limiter.Allow("", "reviewStatus"); err != nil {
			t.Errorf("Request %d should be allowed: %v", i+1, err)
		}
	}

	err := limiter.Allow("", "reviewStatus")
	if !errors.Is(err, ErrLimited) {
		t.Errorf("Expected ErrLimited after burst, got %v", err)
	}
}

func TestToolLimitRefundsGlobal(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 600,
		BurstSize:      10,
		PerToolLimits: map[string]int{
			"startReview": 1,
		},
	})

	if err := limiter.Allow("", "startReview"); err != nil {
		t.Fatalf("First startReview should be allowed: %v", err)
	}
	before := limiter.globalBucket.Tokens()

	if err := limiter.Allow("", "startReview"); !errors.Is(err, ErrLimited) {
		t.Errorf("Second startReview should hit the tool limit, got %v", err)
	}
	if after := limiter.globalBucket.Tokens(); after < before-0.01 {
		t.Errorf("Rejected call kept its global token: %f -> %f", before, after)
	}

	if err := limiter.Allow("", "playMove"); err != nil {
		t.Errorf("Other tools should still be allowed: %v", err)
	}
}

func TestClientLimit(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstSize:      20,
	})

	// Each client gets its own burst drawn from the same global pool.
	for i := 0; i < 10; i++ {
		if err := limiter.Allow("client1", "playMove"); err != nil {
			t.Errorf("client1 request %d should be allowed: %v", i+1, err)
		}
	}
	if err := limiter.Allow("client2", "playMove"); err != nil {
		t.Errorf("client2 should be allowed: %v", err)
	}
	for i := 0; i < 9; i++ {
		_ = limiter.Allow("client1", "playMove")
	}

	if err := limiter.Allow("client3", "playMove"); !errors.Is(err, ErrLimited) {
		t.Errorf("client3 should hit the global limit, got %v", err)
	}
}

func TestWait(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 600,
		BurstSize:      5,
	})

	for i := 0; i < 5; i++ {
		_ = limiter.Allow("client1", "playMove")
	}

	wait := limiter.Wait()
	expected := 100 * time.Millisecond
	if wait < expected-10*time.Millisecond || wait > expected+10*time.Millisecond {
		t.Errorf("Expected wait ~%v, got %v", expected, wait)
	}
}

func TestReset(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstSize:      3,
	})

	for i := 0; i < 3; i++ {
		_ = limiter.Allow("client1", "playMove")
	}
	if err := limiter.Allow("client1", "playMove"); err == nil {
		t.Error("Should be denied after using all tokens")
	}

	limiter.Reset()

	if err := limiter.Allow("client1", "playMove"); err != nil {
		t.Errorf("Should be allowed after reset: %v", err)
	}
}

func TestStatus(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      10,
		PerToolLimits:  map[string]int{"startReview": 30},
	})
	_ = limiter.Allow("client1", "startReview")

	status := limiter.Status()
	if !status.Enabled || status.RequestsPerMin != 60 || status.BurstSize != 10 {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.ActiveClients != 1 {
		t.Errorf("Expected 1 active client, got %d", status.ActiveClients)
	}
	if status.Tools["startReview"].Limit != 30 {
		t.Errorf("Expected startReview limit 30, got %+v", status.Tools["startReview"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstSize:      100,
	})

	var allowed, denied atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if limiter.Allow(fmt.Sprintf("client%d", client), "playMove") == nil {
					allowed.Add(1)
				} else {
					denied.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	if allowed.Load() < 99 || allowed.Load() > 101 {
		t.Errorf("Expected ~100 allowed requests, got %d", allowed.Load())
	}
	if allowed.Load()+denied.Load() != 200 {
		t.Errorf("Lost requests: %d allowed, %d denied", allowed.Load(), denied.Load())
	}
}

func TestRemoveStaleClients(t *testing.T) {
	limiter := newTestLimiter(t, &config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      10,
	})

	_ = limiter.Allow("client1", "playMove")
	_ = limiter.Allow("client2", "playMove")

	limiter.mu.Lock()
	limiter.clientLimits["client1"].lastSeen = time.Now().Add(-31 * time.Minute)
	limiter.mu.Unlock()

	if removed := limiter.removeStaleClients(time.Now()); removed != 1 {
		t.Errorf("Expected 1 stale client removed, got %d", removed)
	}
	if _, ok := limiter.clientLimits["client2"]; !ok {
		t.Error("Active client was removed")
	}
}
