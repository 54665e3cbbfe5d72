package katago

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"
)

type countingMetrics struct {
	nopMetrics
	mu       sync.Mutex
	restarts int
	checks   []bool
}

func (m *countingMetrics) RecordEngineRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
}

func (m *countingMetrics) RecordEngineHealthCheck(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, ok)
}

func (m *countingMetrics) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestSupervisor(engine EngineInterface, m Metrics) *Supervisor {
	s := NewSupervisor(engine, testLogger(), m)
	s.healthCheckInterval = 50 * time.Millisecond
	s.pingTimeout = time.Second
	return s
}

func TestSupervisor(t *testing.T) {
	t.Run("start and stop", func(t *testing.T) {
		mock := NewMockEngine()
		mock.SetRunning(false)
		s := newTestSupervisor(mock, nil)

		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Failed to start supervisor: %v", err)
		}
		if err := s.Start(context.Background()); err == nil {
			t.Error("Expected error starting supervisor twice")
		}

		waitFor(t, "engine start", mock.IsRunning)
		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("Expected healthy engine, got %v", err)
		}

		if err := s.Stop(); err != nil {
			t.Fatalf("Failed to stop supervisor: %v", err)
		}
		if mock.IsRunning() {
			t.Error("Expected engine to be stopped")
		}
		if err := s.Stop(); err != nil {
			t.Errorf("Second stop should be a no-op, got %v", err)
		}
	})

	t.Run("restart when engine dies", func(t *testing.T) {
		mock := NewMockEngine()
		m := &countingMetrics{}
		s := newTestSupervisor(mock, m)
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = s.Stop() }()

		waitFor(t, "first start", func() bool { return mock.StartCalls() == 1 })
		mock.SetRunning(false)

		waitFor(t, "restart", func() bool { return mock.StartCalls() >= 2 && mock.IsRunning() })
		if m.Restarts() < 1 {
			t.Error("Expected restart to be recorded")
		}
	})

	t.Run("restart when ping fails", func(t *testing.T) {
		mock := NewMockEngine()
		s := newTestSupervisor(mock, nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = s.Stop() }()

		waitFor(t, "first start", func() bool { return mock.StartCalls() == 1 })
		mock.SetPingError(errors.New("no answer"))
		waitFor(t, "restart after failed ping", func() bool { return mock.StopCalls() >= 1 })
		mock.SetPingError(nil)
		waitFor(t, "recovery", func() bool { return mock.IsRunning() && mock.StartCalls() >= 2 })
	})

	t.Run("manual restart", func(t *testing.T) {
		mock := NewMockEngine()
		s := NewSupervisor(mock, testLogger(), nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = s.Stop() }()

		waitFor(t, "first start", func() bool { return mock.StartCalls() == 1 })
		s.Restart()
		waitFor(t, "manual restart", func() bool { return mock.StartCalls() == 2 && mock.StopCalls() == 1 })
	})

	t.Run("retry on start failure", func(t *testing.T) {
		mock := NewMockEngine()
		mock.SetStartError(errors.New("model still loading"))
		s := newTestSupervisor(mock, nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = s.Stop() }()

		waitFor(t, "second attempt", func() bool { return mock.StartCalls() >= 2 })
		mock.SetStartError(nil)
		waitFor(t, "successful start", mock.IsRunning)
	})

	t.Run("missing binary is not retried", func(t *testing.T) {
		mock := NewMockEngine()
		mock.SetRunning(false)
		mock.SetStartError(fmt.Errorf("failed to start KataGo: %w", exec.ErrNotFound))
		s := newTestSupervisor(mock, nil)
		s.healthCheckInterval = time.Hour
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = s.Stop() }()

		waitFor(t, "start attempt", func() bool { return mock.StartCalls() == 1 })
		waitFor(t, "health check error", func() bool {
			err := s.HealthCheck(context.Background())
			return errors.Is(err, exec.ErrNotFound)
		})
		time.Sleep(100 * time.Millisecond)
		if mock.StartCalls() != 1 {
			t.Errorf("Expected a single start attempt, got %d", mock.StartCalls())
		}
	})
}
