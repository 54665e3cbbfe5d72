package katago

import (
	"context"
)

// EngineInterface is the part of Engine the rest of the service uses, so
// tests can substitute MockEngine.
type EngineInterface interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	Ping(ctx context.Context) error

	// Analyze analyses the position after all of its moves.
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)

	// AnalyzeTurns analyses the position after each given number of moves.
	AnalyzeTurns(ctx context.Context, req *AnalysisRequest, turns []int) (map[int]*AnalysisResult, error)
}

var _ EngineInterface = (*Engine)(nil)
