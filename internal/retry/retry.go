package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Config controls backoff between attempts.
type Config struct {
	// MaxAttempts bounds the number of calls to fn (0 = unbounded).
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by up to +/- Jitter*delay (0-1).
	Jitter float64

	// OnRetry is called after a failed attempt, before sleeping.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig retries forever, starting at one second and capping at 30.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Run returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Manager runs functions with exponential backoff.
type Manager struct {
	config Config
}

func NewManager(config Config) *Manager {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &Manager{config: config}
}

// Run calls fn until it succeeds, returns a permanent error, exhausts
// MaxAttempts or ctx is done. The last error from fn is returned.
func (m *Manager) Run(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}

		attempt++
		if m.config.MaxAttempts > 0 && attempt >= m.config.MaxAttempts {
			return err
		}

		delay := m.calculateDelay(attempt)
		if m.config.OnRetry != nil {
			m.config.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) calculateDelay(attempt int) time.Duration {
	delay := float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt-1))
	if m.config.MaxDelay > 0 && delay > float64(m.config.MaxDelay) {
		delay = float64(m.config.MaxDelay)
	}

	if m.config.Jitter > 0 {
		spread := delay * m.config.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// NextDelay returns the backoff used after the given failed attempt.
func (m *Manager) NextDelay(attempt int) time.Duration {
	return m.calculateDelay(attempt)
}
