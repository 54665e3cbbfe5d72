package katago

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/dmmcquay/katago-retro/internal/cache"
	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
)

var (
	// ErrNotRunning is returned for queries sent while the process is down.
	ErrNotRunning = errors.New("engine not running")

	// ErrEngineStopped is returned to queries still waiting when the process
	// exits or is stopped.
	ErrEngineStopped = errors.New("engine stopped")
)

// QueryError is an error reported by KataGo for a single query.
type QueryError struct {
	ID      string
	Field   string
	Message string
}

func (e *QueryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("KataGo error for %s (field %s): %s", e.ID, e.Field, e.Message)
	}
	return fmt.Sprintf("KataGo error for %s: %s", e.ID, e.Message)
}

// Metrics receives engine events. *metrics.PrometheusCollector implements it.
type Metrics interface {
	RecordEngineQuery(queryType string, durationSecs float64)
	RecordCacheHit()
	RecordCacheMiss()
	RecordEngineStatus(running bool, version string)
	RecordEngineRestart()
	RecordEngineHealthCheck(success bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordEngineQuery(string, float64) {}
func (nopMetrics) RecordCacheHit() {}
func (nopMetrics) RecordCacheMiss() {}
func (nopMetrics) RecordEngineStatus(bool, string) {}
func (nopMetrics) RecordEngineRestart() {}
func (nopMetrics) RecordEngineHealthCheck(bool) {}

// Engine runs `katago analysis` and multiplexes JSON queries over its
// stdin and stdout.
type Engine struct {
	config  *config.KataGoConfig
	logger  logging.ContextLogger
	cache   *cache.Manager[*AnalysisResult]
	metrics Metrics

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
	queryID int
	pending map[string]chan *Response
	exited  chan struct{}
	version string
}

// Response is one line of KataGo analysis engine output.
type Response struct {
	ID             string     `json:"id"`
	TurnNumber     int        `json:"turnNumber"`
	IsDuringSearch bool       `json:"isDuringSearch"`
	MoveInfos      []MoveInfo `json:"moveInfos"`
	RootInfo       RootInfo   `json:"rootInfo"`
	Version        string     `json:"version,omitempty"`
	Action         string     `json:"action,omitempty"`
	Error          string     `json:"error,omitempty"`
	Field          string     `json:"field,omitempty"`
	Warning        string     `json:"warning,omitempty"`
}

type MoveInfo struct {
	Move      string   `json:"move"`
	Visits    int      `json:"visits"`
	Winrate   float64  `json:"winrate"`
	ScoreLead float64  `json:"scoreLead"`
	ScoreMean float64  `json:"scoreMean"`
	Prior     float64  `json:"prior"`
	PV        []string `json:"pv"`
	Order     int      `json:"order"`
}

// RootInfo describes the analysed position. Winrate is Black's, since every
// query asks KataGo to report from Black's side.
type RootInfo struct {
	Visits        int     `json:"visits"`
	Winrate       float64 `json:"winrate"`
	ScoreLead     float64 `json:"scoreLead"`
	ScoreMean     float64 `json:"scoreMean"`
	ScoreStdev    float64 `json:"scoreStdev"`
	CurrentPlayer string  `json:"currentPlayer"`
}

// NewEngine creates a stopped engine. cacheManager and m may be nil.
func NewEngine(cfg *config.KataGoConfig, logger logging.ContextLogger, cacheManager *cache.Manager[*AnalysisResult], m Metrics) *Engine {
	if cacheManager == nil {
		cacheManager = cache.NewManager[*AnalysisResult](nil, logger)
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Engine{
		config:  cfg,
		logger:  logger.WithField("component", "katago"),
		cache:   cacheManager,
		metrics: m,
		pending: make(map[string]chan *Response),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}

	args := []string{"analysis"}
	if e.config.ConfigPath != "" {
		args = append(args, "-config", e.config.ConfigPath)
	}
	if e.config.ModelPath != "" {
		args = append(args, "-model", e.config.ModelPath)
	}
	if e.config.NumThreads > 0 {
		args = append(args, "-override-config", fmt.Sprintf("numAnalysisThreads=%d", e.config.NumThreads))
	}

	cmd := exec.CommandContext(ctx, e.config.BinaryPath, args...) // #nosec G204 -- BinaryPath is validated configuration

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start KataGo: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.running = true
	e.exited = make(chan struct{})

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		e.readStdout(bufio.NewReader(stdout))
	}()
	go func() {
		defer readers.Done()
		e.readStderr(stderr)
	}()

	// Wait must not run before the pipes are drained.
	exited := e.exited
	go func() {
		readers.Wait()
		if err := cmd.Wait(); err != nil {
			e.logger.Debug("KataGo process exited", "error", err)
		}
		close(exited)
	}()

	e.logger.Info("KataGo engine started",
		"binary", e.config.BinaryPath,
		"model", e.config.ModelPath,
		"threads", e.config.NumThreads,
	)
	e.metrics.RecordEngineStatus(true, e.version)

	return nil
}

// Stop closes stdin, waits up to five seconds for KataGo to exit, then kills
// it. Pending queries fail with ErrEngineStopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cmd, exited := e.cmd, e.exited
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	e.failPending()
	e.mu.Unlock()

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-exited
	}

	e.metrics.RecordEngineStatus(false, e.Version())
	e.logger.Info("KataGo engine stopped")
	return nil
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Version returns the version reported by the last successful Ping.
func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Ping asks KataGo for its version.
func (e *Engine) Ping(ctx context.Context) error {
	e.mu.Lock()
	running, cmd := e.running, e.cmd
	e.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("engine process not found")
	}

	start := time.Now()
	responses, err := e.send(ctx, map[string]interface{}{"action": "query_version"}, 1)
	e.metrics.RecordEngineQuery("version", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	e.mu.Lock()
	e.version = responses[0].Version
	e.mu.Unlock()
	return nil
}

// failPending must be called with e.mu held.
func (e *Engine) failPending() {
	for id, ch := range e.pending {
		close(ch)
		delete(e.pending, id)
	}
}

func (e *Engine) readStdout(stdout *bufio.Reader) {
	defer func() {
		e.mu.Lock()
		if e.running {
			e.logger.Warn("KataGo output closed unexpectedly")
			e.running = false
			e.metrics.RecordEngineStatus(false, e.version)
		}
		e.failPending()
		e.mu.Unlock()
	}()

	for {
		line, err := stdout.ReadBytes('\n')
		if len(line) > 1 {
			e.dispatch(line)
		}
		if err != nil {
			if err != io.EOF {
				e.logger.Error("Failed to read KataGo output", "error", err)
			}
			return
		}
	}
}

func (e *Engine) dispatch(line []byte) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		e.logger.Warn("Failed to parse KataGo response", "error", err, "bytes", len(line))
		return
	}
	if resp.Warning != "" {
		e.logger.Warn("KataGo warning", "id", resp.ID, "field", resp.Field, "warning", resp.Warning)
	}
	if resp.IsDuringSearch {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.pending[resp.ID]
	if !ok {
		return
	}
	select {
	case ch <- &resp:
	default:
		e.logger.Warn("Dropping unexpected KataGo response", "id", resp.ID)
	}
}

func (e *Engine) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			e.logger.Debug("KataGo stderr", "line", line)
		}
	}
}

// send writes query and collects expect final responses for it. When ctx
// ends first, KataGo is told to terminate the query.
func (e *Engine) send(ctx context.Context, query map[string]interface{}, expect int) ([]*Response, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}

	e.queryID++
	id := fmt.Sprintf("q%d", e.queryID)
	query["id"] = id

	data, err := json.Marshal(query)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	ch := make(chan *Response, expect)
	e.pending[id] = ch
	if _, err := e.stdin.Write(append(data, '\n')); err != nil {
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to send query: %w", err)
	}
	e.mu.Unlock()

	timer := time.NewTimer(e.queryTimeout(expect))
	defer timer.Stop()

	responses := make([]*Response, 0, expect)
	for len(responses) < expect {
		select {
		case resp, ok := <-ch:
			if !ok {
				return nil, ErrEngineStopped
			}
			if resp.Error != "" {
				e.forget(id)
				return nil, &QueryError{ID: id, Field: resp.Field, Message: resp.Error}
			}
			responses = append(responses, resp)
		case <-ctx.Done():
			e.terminate(id)
			return nil, ctx.Err()
		case <-timer.C:
			e.terminate(id)
			return nil, fmt.Errorf("query %s timed out", id)
		}
	}

	e.forget(id)
	return responses, nil
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// terminate drops the query locally and asks KataGo to stop searching it.
func (e *Engine) terminate(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.pending, id)
	if !e.running {
		return
	}
	data, _ := json.Marshal(map[string]interface{}{
		"id":          "terminate_" + id,
		"action":      "terminate",
		"terminateId": id,
	})
	if _, err := e.stdin.Write(append(data, '\n')); err != nil {
		e.logger.Debug("Failed to terminate query", "id", id, "error", err)
	}
}

// queryTimeout allows twice the configured search time per analysed turn.
func (e *Engine) queryTimeout(turns int) time.Duration {
	perTurn := time.Duration(e.config.MaxTime * 2 * float64(time.Second))
	if perTurn < 10*time.Second {
		perTurn = 10 * time.Second
	}
	return perTurn * time.Duration(max(turns, 1))
}
