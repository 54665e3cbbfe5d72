package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmmcquay/katago-retro/internal/logging"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means the component failed but the service still works
	// without it.
	StatusDegraded Status = "degraded"
)

// Check reports a component's health. Wrap the error with Degraded when the
// failure only reduces functionality.
type Check func(ctx context.Context) error

type degradedError struct{ err error }

func (e *degradedError) Error() string { return e.err.Error() }
func (e *degradedError) Unwrap() error { return e.err }

// Degraded marks err as a non-fatal failure.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return &degradedError{err: err}
}

type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

type Response struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components,omitempty"`
	Version    string      `json:"version,omitempty"`
	GitCommit  string      `json:"git_commit,omitempty"`
}

// Checker runs the registered component checks.
type Checker struct {
	logger    logging.ContextLogger
	checks    map[string]Check
	mu        sync.RWMutex
	timeout   time.Duration
	version   string
	gitCommit string
}

func NewChecker(logger logging.ContextLogger, version, gitCommit string) *Checker {
	return &Checker{
		logger:    logger,
		checks:    make(map[string]Check),
		timeout:   5 * time.Second,
		version:   version,
		gitCommit: gitCommit,
	}
}

// RegisterCheck registers or replaces the check for name.
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// CheckHealth runs every check in parallel. The overall status is the worst
// component status. Components are sorted by name.
func (c *Checker) CheckHealth(ctx context.Context) Response {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	response := Response{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		GitCommit:  c.gitCommit,
		Components: make([]Component, 0, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			component := c.run(ctx, name, check)

			mu.Lock()
			response.Components = append(response.Components, component)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(response.Components, func(i, j int) bool {
		return response.Components[i].Name < response.Components[j].Name
	})
	for _, comp := range response.Components {
		switch comp.Status {
		case StatusUnhealthy:
			response.Status = StatusUnhealthy
		case StatusDegraded:
			if response.Status == StatusHealthy {
				response.Status = StatusDegraded
			}
		}
	}

	return response
}

func (c *Checker) run(ctx context.Context, name string, check Check) Component {
	component := Component{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now().UTC(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := check(checkCtx)
	if err == nil {
		return component
	}

	component.Message = err.Error()
	var degraded *degradedError
	if errors.As(err, &degraded) {
		component.Status = StatusDegraded
		c.logger.WithField("component", name).Warn("Health check degraded", "error", err)
	} else {
		component.Status = StatusUnhealthy
		c.logger.WithField("component", name).Error("Health check failed", "error", err)
	}
	return component
}

// LivenessHandler reports healthy whenever the process can serve requests.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, Response{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   c.version,
			GitCommit: c.gitCommit,
		}, c.logger)
	}
}

// ReadinessHandler runs the checks. Degraded is still ready; unhealthy
// answers 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.ContextWithCorrelationID(r.Context(), logging.GenerateCorrelationID())
		logger := c.logger.WithContext(ctx)
		logger.Debug("Performing readiness check")

		response := c.CheckHealth(ctx)

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.write(w, statusCode, response, logger)
	}
}

func (c *Checker) write(w http.ResponseWriter, statusCode int, response Response, logger logging.ContextLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode health response", "error", err)
	}
}
