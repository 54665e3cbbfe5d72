package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
)

// ErrLimited is wrapped by every rejection from Allow.
var ErrLimited = errors.New("rate limit exceeded")

const (
	staleClientTimeout = 30 * time.Minute
	cleanupInterval    = 5 * time.Minute
)

// Limiter applies a global limit, optional per-tool limits, and the same
// pair again per client. A nil *Limiter allows everything.
type Limiter struct {
	logger       logging.ContextLogger
	config       *config.RateLimitConfig
	globalBucket *TokenBucket
	toolBuckets  map[string]*TokenBucket
	clientLimits map[string]*clientRateLimit
	mu           sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

type clientRateLimit struct {
	globalBucket *TokenBucket
	toolBuckets  map[string]*TokenBucket
	lastSeen     time.Time
}

// Status is a snapshot for getEngineStatus and logs.
type Status struct {
	Enabled        bool                  `json:"enabled"`
	RequestsPerMin int                   `json:"requestsPerMin,omitempty"`
	BurstSize      int                   `json:"burstSize,omitempty"`
	GlobalTokens   float64               `json:"globalTokens,omitempty"`
	ActiveClients  int                   `json:"activeClients,omitempty"`
	Tools          map[string]ToolStatus `json:"tools,omitempty"`
}

type ToolStatus struct {
	Limit  int     `json:"limit"`
	Tokens float64 `json:"tokens"`
}

// NewLimiter returns nil when rate limiting is disabled.
func NewLimiter(cfg *config.RateLimitConfig, logger logging.ContextLogger) *Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	l := &Limiter{
		logger:       logger,
		config:       cfg,
		globalBucket: NewTokenBucket(cfg.BurstSize, perSecond(cfg.RequestsPerMin)),
		toolBuckets:  make(map[string]*TokenBucket),
		clientLimits: make(map[string]*clientRateLimit),
		stop:         make(chan struct{}),
	}
	for tool := range cfg.PerToolLimits {
		l.toolBuckets[tool] = l.newToolBucket(tool)
	}

	go l.cleanupStaleClients()

	return l
}

func perSecond(perMinute int) float64 {
	return float64(perMinute) / 60.0
}

// newToolBucket scales the burst by the tool's share of the global rate.
func (l *Limiter) newToolBucket(tool string) *TokenBucket {
	limit := l.config.PerToolLimits[tool]
	burst := 1
	if l.config.RequestsPerMin > 0 {
		burst = (l.config.BurstSize * limit) / l.config.RequestsPerMin
	}
	if burst < 1 {
		burst = 1
	}
	return NewTokenBucket(burst, perSecond(limit))
}

// Allow consumes one token from every applicable bucket, refunding them all
// if any one rejects.
func (l *Limiter) Allow(clientID, toolName string) error {
	if l == nil {
		return nil
	}

	if !l.globalBucket.Allow(1) {
		l.logger.Warn("Global rate limit exceeded", "client", clientID, "tool", toolName)
		return fmt.Errorf("global: %w", ErrLimited)
	}

	l.mu.RLock()
	toolBucket, hasToolLimit := l.toolBuckets[toolName]
	l.mu.RUnlock()

	if hasToolLimit && !toolBucket.Allow(1) {
		l.globalBucket.Refund(1)
		l.logger.Warn("Tool rate limit exceeded", "client", clientID, "tool", toolName)
		return fmt.Errorf("tool %s: %w", toolName, ErrLimited)
	}

	if clientID != "" {
		if err := l.checkClientLimit(clientID, toolName); err != nil {
			l.globalBucket.Refund(1)
			if hasToolLimit {
				toolBucket.Refund(1)
			}
			return err
		}
	}

	return nil
}

func (l *Limiter) checkClientLimit(clientID, toolName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	client, ok := l.clientLimits[clientID]
	if !ok {
		client = &clientRateLimit{
			globalBucket: NewTokenBucket(l.config.BurstSize, perSecond(l.config.RequestsPerMin)),
			toolBuckets:  make(map[string]*TokenBucket),
		}
		l.clientLimits[clientID] = client
	}
	client.lastSeen = time.Now()

	if !client.globalBucket.Allow(1) {
		l.logger.Warn("Client rate limit exceeded", "client", clientID, "tool", toolName)
		return fmt.Errorf("client %s: %w", clientID, ErrLimited)
	}

	if _, limited := l.config.PerToolLimits[toolName]; limited {
		bucket, ok := client.toolBuckets[toolName]
		if !ok {
			bucket = l.newToolBucket(toolName)
			client.toolBuckets[toolName] = bucket
		}
		if !bucket.Allow(1) {
			client.globalBucket.Refund(1)
			l.logger.Warn("Client tool rate limit exceeded", "client", clientID, "tool", toolName)
			return fmt.Errorf("client %s tool %s: %w", clientID, toolName, ErrLimited)
		}
	}

	return nil
}

// Wait reserves a global token and returns the delay before it is usable.
func (l *Limiter) Wait() time.Duration {
	if l == nil {
		return 0
	}
	return l.globalBucket.Wait(1)
}

func (l *Limiter) Reset() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.globalBucket.Reset()
	for _, bucket := range l.toolBuckets {
		bucket.Reset()
	}
	for _, client := range l.clientLimits {
		client.globalBucket.Reset()
		for _, bucket := range client.toolBuckets {
			bucket.Reset()
		}
	}
}

// Stop ends the stale client sweeper.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupStaleClients() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.removeStaleClients(now)
		}
	}
}

func (l *Limiter) removeStaleClients(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for clientID, client := range l.clientLimits {
		if now.Sub(client.lastSeen) > staleClientTimeout {
			delete(l.clientLimits, clientID)
			removed++
			l.logger.Debug("Removed stale client rate limit tracking", "client", clientID)
		}
	}
	return removed
}

func (l *Limiter) Status() Status {
	if l == nil {
		return Status{Enabled: false}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	status := Status{
		Enabled:        true,
		RequestsPerMin: l.config.RequestsPerMin,
		BurstSize:      l.config.BurstSize,
		GlobalTokens:   l.globalBucket.Tokens(),
		ActiveClients:  len(l.clientLimits),
		Tools:          make(map[string]ToolStatus, len(l.toolBuckets)),
	}
	for tool, bucket := range l.toolBuckets {
		status.Tools[tool] = ToolStatus{
			Limit:  l.config.PerToolLimits[tool],
			Tokens: bucket.Tokens(),
		}
	}
	return status
}
