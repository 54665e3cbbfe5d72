package katago

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/katago-retro/internal/config"
)

func testRetroConfig() *config.RetroConfig {
	return &config.RetroConfig{
		MinDepth:       3,
		MaxDepth:       5,
		VisitsPerDepth: 10,
		AnalysisVisits: 200,
	}
}

func TestAnalyzeGame(t *testing.T) {
	engine := NewMockEngine()
	engine.SetAnalyzeFunc(func(pos *Position, visits int) (*AnalysisResult, error) {
		turn := len(pos.Moves)
		result := &AnalysisResult{RootInfo: RootInfo{Winrate: 0.5 + float64(turn)/10}}
		if turn < 3 {
			result.MoveInfos = []MoveInfo{{Move: "C3", Winrate: 0.7, PV: []string{"C3", "pass", "D4"}}}
		}
		return result, nil
	})

	a := NewAnalyzer(engine, testRetroConfig(), testLogger())
	analysis, err := a.AnalyzeGame(context.Background(), testPosition())
	require.NoError(t, err)

	require.True(t, analysis.Complete(3))
	assert.False(t, analysis.Complete(4))
	assert.Equal(t, 5, analysis.Depth)
	assert.Equal(t, []int{200}, engine.Visits(), "all turns go in one request")
	assert.Equal(t, 4, engine.AnalyzeCalls())

	first := analysis.Turns[0]
	assert.Equal(t, 0, first.Turn)
	assert.Equal(t, 5, first.Eval.Depth)
	assert.InDelta(t, 0.5, first.Eval.Score, 1e-9)
	assert.Equal(t, []string{"C3", "pass", "D4"}, first.Eval.BestLine)

	require.NotNil(t, first.Best)
	assert.Equal(t, "C3", first.Best.Move)
	assert.InDelta(t, 0.7, first.Best.Eval.Score, 1e-9)
	assert.Equal(t, []string{"pass", "D4"}, first.Best.Eval.BestLine)
	assert.Equal(t, 5, first.Best.Eval.Depth)

	last := analysis.Turns[3]
	assert.Nil(t, last.Best)
	assert.InDelta(t, 0.8, last.Eval.Score, 1e-9)
}

func TestAnalyzeGamePassBest(t *testing.T) {
	engine := NewMockEngine()
	engine.SetAnalyzeFunc(func(pos *Position, visits int) (*AnalysisResult, error) {
		return &AnalysisResult{
			RootInfo:  RootInfo{Winrate: 0.5},
			MoveInfos: []MoveInfo{{Move: "pass", Winrate: 0.5}},
		}, nil
	})

	analysis, err := NewAnalyzer(engine, testRetroConfig(), testLogger()).AnalyzeGame(context.Background(), testPosition())
	require.NoError(t, err)
	require.NotNil(t, analysis.Turns[1].Best)
	assert.Equal(t, "", analysis.Turns[1].Best.Move)
	assert.Empty(t, analysis.Turns[1].Best.Eval.BestLine)
}

func TestAnalyzeGameError(t *testing.T) {
	engine := NewMockEngine()
	engine.SetAnalyzeFunc(func(pos *Position, visits int) (*AnalysisResult, error) {
		return nil, errors.New("boom")
	})

	_, err := NewAnalyzer(engine, testRetroConfig(), testLogger()).AnalyzeGame(context.Background(), testPosition())
	assert.Error(t, err)

	var nilAnalysis *GameAnalysis
	assert.False(t, nilAnalysis.Complete(0))
}
