package katago

import (
	"context"
	"fmt"
	"time"

	"github.com/dmmcquay/katago-retro/internal/config"
	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retro"
)

// TurnAnalysis is the settled evaluation of the position after Turn moves,
// plus the position reached by the engine's preferred move.
type TurnAnalysis struct {
	Turn int        `json:"turn"`
	Eval retro.Eval `json:"eval"`
	// Best is nil when KataGo suggested no move.
	Best *BestMove `json:"best,omitempty"`
}

// BestMove is the engine's top move from a position and the evaluation of
// the position it leads to.
type BestMove struct {
	// Move is a GTP vertex, "" for a pass.
	Move string     `json:"move"`
	Eval retro.Eval `json:"eval"`
}

// GameAnalysis holds one TurnAnalysis per mainline position, root first.
type GameAnalysis struct {
	Turns []TurnAnalysis `json:"turns"`
	// Depth is the depth stamped on every evaluation.
	Depth int `json:"depth"`
}

// Complete reports whether every position of a game with moves moves was
// analysed.
func (g *GameAnalysis) Complete(moves int) bool {
	return g != nil && len(g.Turns) == moves+1
}

// Analyzer runs the full computer analysis of a game.
type Analyzer struct {
	engine EngineInterface
	visits int
	depth  int
	logger logging.ContextLogger
}

// NewAnalyzer stamps results with cfg.MaxDepth, so the gate treats them as
// settled.
func NewAnalyzer(engine EngineInterface, cfg *config.RetroConfig, logger logging.ContextLogger) *Analyzer {
	return &Analyzer{
		engine: engine,
		visits: cfg.AnalysisVisits,
		depth:  cfg.MaxDepth,
		logger: logger,
	}
}

// AnalyzeGame evaluates every position on the mainline of pos.
func (a *Analyzer) AnalyzeGame(ctx context.Context, pos *Position) (*GameAnalysis, error) {
	logger := a.logger.WithContext(ctx)
	start := time.Now()

	turns := make([]int, len(pos.Moves)+1)
	for i := range turns {
		turns[i] = i
	}

	results, err := a.engine.AnalyzeTurns(ctx, &AnalysisRequest{Position: pos, MaxVisits: a.visits}, turns)
	if err != nil {
		return nil, fmt.Errorf("failed to analyse game: %w", err)
	}

	analysis := &GameAnalysis{
		Turns: make([]TurnAnalysis, 0, len(turns)),
		Depth: a.depth,
	}
	for _, t := range turns {
		result, ok := results[t]
		if !ok {
			return nil, fmt.Errorf("no analysis for turn %d", t)
		}
		analysis.Turns = append(analysis.Turns, a.turnAnalysis(t, result))
	}

	logger.Info("Game analysed",
		"turns", len(analysis.Turns),
		"visits", a.visits,
		"duration", time.Since(start).String(),
	)
	return analysis, nil
}

func (a *Analyzer) turnAnalysis(turn int, result *AnalysisResult) TurnAnalysis {
	ta := TurnAnalysis{
		Turn: turn,
		Eval: result.Eval(a.depth),
	}

	top, ok := result.Top()
	if !ok {
		return ta
	}

	// The top move's winrate is already from Black's side; its PV continues
	// from the position after it.
	line := ta.Eval.BestLine
	ta.Best = &BestMove{
		Move: NormalizeVertex(line[0]),
		Eval: retro.Eval{
			Depth:    a.depth,
			Score:    top.Winrate,
			BestLine: line[1:],
		},
	}
	return ta
}
