package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmmcquay/katago-retro/internal/logging"
)

type component struct {
	name string
	fn   func(context.Context) error
}

// Manager stops registered components in reverse order of registration, so
// review sessions close before the engine they use, and the engine before
// the store.
type Manager struct {
	logger       logging.ContextLogger
	mu           sync.Mutex
	components   []component
	done         chan struct{}
	err          error
	shutdownOnce sync.Once
}

func NewManager(logger logging.ContextLogger) *Manager {
	return &Manager{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds a component to stop on shutdown.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, fn: fn})
}

// HandleSignals starts a graceful shutdown on SIGINT or SIGTERM.
func (m *Manager) HandleSignals(timeout time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Info("Received shutdown signal", "signal", sig.String())
			m.Shutdown(timeout)
		case <-m.done:
		}
		signal.Stop(sigCh)
	}()
}

// Shutdown stops every component once, within timeout overall. A component
// still running when the deadline passes is abandoned and the remaining ones
// are skipped.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.shutdownOnce.Do(func() {
		defer close(m.done)
		m.logger.Info("Starting graceful shutdown", "timeout", timeout.String())

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		m.mu.Lock()
		components := make([]component, len(m.components))
		copy(components, m.components)
		m.mu.Unlock()

		var errs []error
		for i := len(components) - 1; i >= 0; i-- {
			if err := m.stop(ctx, components[i]); err != nil {
				errs = append(errs, err)
			}
			if ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("shutdown timed out after %s", timeout))
				m.logger.Error("Graceful shutdown timed out", "timeout", timeout.String())
				break
			}
		}

		m.err = errors.Join(errs...)
		if m.err != nil {
			m.logger.Error("Graceful shutdown completed with errors", "errors", len(errs))
		} else {
			m.logger.Info("Graceful shutdown completed successfully")
		}
	})

	<-m.done
	return m.err
}

func (m *Manager) stop(ctx context.Context, c component) error {
	m.logger.Info("Shutting down component", "component", c.name)
	start := time.Now()

	result := make(chan error, 1)
	go func() { result <- c.fn(ctx) }()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	elapsed := time.Since(start).String()
	if err != nil {
		m.logger.Error("Failed to shutdown component", "component", c.name, "error", err, "elapsed", elapsed)
		return fmt.Errorf("%s: %w", c.name, err)
	}
	m.logger.Info("Component shutdown complete", "component", c.name, "elapsed", elapsed)
	return nil
}

// Done is closed when shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// WaitForShutdown blocks until shutdown has finished.
func (m *Manager) WaitForShutdown() {
	<-m.done
}
