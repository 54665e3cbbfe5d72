package katago

import (
	"context"
	"fmt"
	"sync"
)

// AnalyzeFunc answers a mock analysis of pos, already truncated to the
// requested turn.
type AnalyzeFunc func(pos *Position, visits int) (*AnalysisResult, error)

// MockEngine is an in-memory EngineInterface for tests.
type MockEngine struct {
	mu       sync.Mutex
	running  bool
	pingErr  error
	startErr error
	stopErr  error
	analyze  AnalyzeFunc

	pingCalls    int
	startCalls   int
	stopCalls    int
	analyzeCalls int
	visits       []int
}

var _ EngineInterface = (*MockEngine)(nil)

// NewMockEngine returns a running mock that answers every analysis with an
// even position and no suggested move.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		running: true,
		analyze: func(pos *Position, visits int) (*AnalysisResult, error) {
			return &AnalysisResult{Turn: len(pos.Moves), RootInfo: RootInfo{Winrate: 0.5, Visits: visits}}, nil
		},
	}
}

func (m *MockEngine) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func (m *MockEngine) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *MockEngine) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockEngine) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

// SetAnalyzeFunc replaces the analysis hook.
func (m *MockEngine) SetAnalyzeFunc(fn AnalyzeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyze = fn
}

func (m *MockEngine) PingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}

func (m *MockEngine) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls
}

func (m *MockEngine) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// AnalyzeCalls counts analysed positions, one per turn.
func (m *MockEngine) AnalyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzeCalls
}

// Visits returns the visit counts requested so far, in order.
func (m *MockEngine) Visits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.visits...)
}

func (m *MockEngine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.running = false
	return m.stopErr
}

func (m *MockEngine) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MockEngine) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCalls++
	if !m.running {
		return ErrNotRunning
	}
	return m.pingErr
}

func (m *MockEngine) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	turn := len(req.Position.Moves)
	results, err := m.AnalyzeTurns(ctx, req, []int{turn})
	if err != nil {
		return nil, err
	}
	return results[turn], nil
}

func (m *MockEngine) AnalyzeTurns(ctx context.Context, req *AnalysisRequest, turns []int) (map[int]*AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	running, fn := m.running, m.analyze
	m.analyzeCalls += len(turns)
	m.visits = append(m.visits, req.MaxVisits)
	m.mu.Unlock()

	if !running {
		return nil, ErrNotRunning
	}

	results := make(map[int]*AnalysisResult, len(turns))
	for _, t := range turns {
		if t < 0 || t > len(req.Position.Moves) {
			return nil, fmt.Errorf("turn %d out of range 0..%d", t, len(req.Position.Moves))
		}
		pos := req.Position.Clone()
		pos.Moves = pos.Moves[:t]
		result, err := fn(pos, req.MaxVisits)
		if err != nil {
			return nil, err
		}
		result.Turn = t
		results[t] = result
	}
	return results, nil
}
