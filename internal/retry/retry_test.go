package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRunSucceedsFirstTime(t *testing.T) {
	manager := NewManager(fastConfig(3))

	var attempts atomic.Int32
	err := manager.Run(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		retries = append(retries, attempt)
	}
	manager := NewManager(cfg)

	var attempts atomic.Int32
	engineDown := errors.New("engine down")

	start := time.Now()
	err := manager.Run(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return engineDown
	})
	elapsed := time.Since(start)

	if !errors.Is(err, engineDown) {
		t.Errorf("Expected %v, got %v", engineDown, err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
	// 10ms + 20ms between the three attempts
	if elapsed < 30*time.Millisecond {
		t.Errorf("Expected at least 30ms elapsed, got %v", elapsed)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("Expected OnRetry for attempts 1 and 2, got %v", retries)
	}
}

func TestRunSucceedsAfterRetries(t *testing.T) {
	manager := NewManager(fastConfig(5))

	var attempts atomic.Int32
	err := manager.Run(context.Background(), func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRunStopsOnPermanentError(t *testing.T) {
	manager := NewManager(fastConfig(0))

	badModel := errors.New("model file missing")
	var attempts atomic.Int32
	err := manager.Run(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return Permanent(badModel)
	})

	if err != badModel {
		t.Errorf("Expected unwrapped permanent error, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
	if !IsPermanent(Permanent(badModel)) || IsPermanent(badModel) {
		t.Error("IsPermanent misclassified errors")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRunHonorsContext(t *testing.T) {
	manager := NewManager(Config{
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := manager.Run(ctx, func(ctx context.Context) error {
		return errors.New("still failing")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Run did not return promptly after cancellation")
	}
}

func TestNextDelay(t *testing.T) {
	manager := NewManager(Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := manager.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNextDelayJitter(t *testing.T) {
	manager := NewManager(Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.5,
	})

	for i := 0; i < 50; i++ {
		d := manager.NextDelay(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("Jittered delay %v outside [50ms, 150ms]", d)
		}
	}
}
