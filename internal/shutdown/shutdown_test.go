package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.ContextLogger {
	return logging.NewLoggerAdapter(logging.NewLogger("test: ", "error"))
}

func TestShutdownReverseOrder(t *testing.T) {
	manager := NewManager(testLogger())

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"store", "engine", "sessions"} {
		name := name
		manager.Register(name, func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, manager.Shutdown(5*time.Second))
	assert.Equal(t, []string{"sessions", "engine", "store"}, order)

	select {
	case <-manager.Done():
	default:
		t.Fatal("Done should be closed after shutdown")
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	manager := NewManager(testLogger())
	calls := 0
	manager.Register("engine", func(ctx context.Context) error {
		calls++
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.Shutdown(time.Second)
		}()
	}
	wg.Wait()
	manager.WaitForShutdown()

	assert.Equal(t, 1, calls)
}

func TestShutdownCollectsErrors(t *testing.T) {
	manager := NewManager(testLogger())
	errEngine := errors.New("engine stuck")

	manager.Register("store", func(ctx context.Context) error { return nil })
	manager.Register("engine", func(ctx context.Context) error { return errEngine })
	manager.Register("sessions", func(ctx context.Context) error { return fmt.Errorf("2 sessions") })

	err := manager.Shutdown(5 * time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errEngine)
	assert.Contains(t, err.Error(), "engine: engine stuck")
	assert.Contains(t, err.Error(), "sessions: 2 sessions")
}

func TestShutdownTimeout(t *testing.T) {
	manager := NewManager(testLogger())
	storeCalled := false

	manager.Register("store", func(ctx context.Context) error {
		storeCalled = true
		return nil
	})
	manager.Register("engine", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	start := time.Now()
	err := manager.Shutdown(50 * time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, storeCalled, "components after the deadline are skipped")
}
