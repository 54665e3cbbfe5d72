package katago

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"sync"
	"time"

	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retry"
)

// Supervisor keeps an engine running, restarting it with exponential
// backoff when it dies or stops answering pings.
type Supervisor struct {
	engine       EngineInterface
	logger       logging.ContextLogger
	metrics      Metrics
	retryManager *retry.Manager

	mu                  sync.RWMutex
	running             bool
	stopCh              chan struct{}
	restartCh           chan struct{}
	done                chan struct{}
	healthCheckInterval time.Duration
	pingTimeout         time.Duration
	lastErr             error
}

// NewSupervisor supervises engine. m may be nil.
func NewSupervisor(engine EngineInterface, logger logging.ContextLogger, m Metrics) *Supervisor {
	if m == nil {
		m = nopMetrics{}
	}
	s := &Supervisor{
		engine:              engine,
		logger:              logger.WithField("component", "supervisor"),
		metrics:             m,
		stopCh:              make(chan struct{}),
		restartCh:           make(chan struct{}, 1),
		done:                make(chan struct{}),
		healthCheckInterval: 30 * time.Second,
		pingTimeout:         10 * time.Second,
	}

	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("KataGo engine start failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	}
	s.retryManager = retry.NewManager(cfg)
	return s
}

// Start returns immediately; the engine is started in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	s.running = true
	go s.supervise(ctx)
	return nil
}

// Stop ends supervision and stops the engine.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.done
	return s.engine.Stop()
}

func (s *Supervisor) GetEngine() EngineInterface {
	return s.engine
}

// Restart asks for the engine to be restarted. Requests made while one is
// pending are merged.
func (s *Supervisor) Restart() {
	select {
	case s.restartCh <- struct{}{}:
		s.logger.Info("Manual restart requested")
	default:
	}
}

// HealthCheck reports the engine's state for the health checker.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if !s.engine.IsRunning() {
		s.mu.RLock()
		lastErr := s.lastErr
		s.mu.RUnlock()
		if lastErr != nil {
			return fmt.Errorf("engine not running: %w", lastErr)
		}
		return ErrNotRunning
	}
	return s.engine.Ping(ctx)
}

func (s *Supervisor) supervise(ctx context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("Starting KataGo supervisor")
	s.startEngineWithRetry(ctx)

	ticker := time.NewTicker(s.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Supervisor stopped")
			return

		case <-s.restartCh:
			s.logger.Info("Restarting KataGo engine")
			s.restart(ctx)

		case <-ticker.C:
			if !s.engine.IsRunning() {
				s.logger.Warn("KataGo engine not running, restarting")
				s.metrics.RecordEngineHealthCheck(false)
				s.restart(ctx)
				continue
			}

			pingCtx, pingCancel := context.WithTimeout(ctx, s.pingTimeout)
			err := s.engine.Ping(pingCtx)
			pingCancel()
			s.metrics.RecordEngineHealthCheck(err == nil)

			if err != nil && ctx.Err() == nil {
				s.logger.Error("KataGo engine health check failed", "error", err)
				s.restart(ctx)
			}
		}
	}
}

func (s *Supervisor) restart(ctx context.Context) {
	if err := s.engine.Stop(); err != nil {
		s.logger.Error("Failed to stop engine for restart", "error", err)
	}
	s.metrics.RecordEngineRestart()
	s.startEngineWithRetry(ctx)
}

func (s *Supervisor) startEngineWithRetry(ctx context.Context) {
	err := s.retryManager.Run(ctx, func(ctx context.Context) error {
		if err := s.engine.Start(ctx); err != nil {
			// A missing binary will not appear by waiting.
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
				return retry.Permanent(err)
			}
			return err
		}

		pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
		defer cancel()
		if err := s.engine.Ping(pingCtx); err != nil {
			_ = s.engine.Stop()
			return fmt.Errorf("engine not responsive after start: %w", err)
		}
		return nil
	})

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Giving up on starting KataGo engine", "error", err)
		}
		return
	}
	s.logger.Info("KataGo engine started successfully")
}
