package katago

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dmmcquay/katago-retro/internal/cache"
	"github.com/dmmcquay/katago-retro/internal/retro"
)

// AnalysisRequest asks for an analysis of Position after some of its moves.
type AnalysisRequest struct {
	Position *Position
	// MaxVisits overrides the configured visit limit when positive.
	MaxVisits int
}

// AnalysisResult is KataGo's final analysis of one position.
type AnalysisResult struct {
	Turn      int        `json:"turn"`
	MoveInfos []MoveInfo `json:"moveInfos"`
	RootInfo  RootInfo   `json:"rootInfo"`
}

// Top returns the move KataGo ranks first.
func (r *AnalysisResult) Top() (MoveInfo, bool) {
	if len(r.MoveInfos) == 0 {
		return MoveInfo{}, false
	}
	top := r.MoveInfos[0]
	for _, info := range r.MoveInfos[1:] {
		if info.Order < top.Order {
			top = info
		}
	}
	return top, true
}

// BestLine returns the principal variation of the top move, with passes
// spelled "pass".
func (r *AnalysisResult) BestLine() []string {
	top, ok := r.Top()
	if !ok {
		return nil
	}

	pv := top.PV
	if len(pv) == 0 {
		pv = []string{top.Move}
	}
	line := make([]string, len(pv))
	for i, m := range pv {
		if v := NormalizeVertex(m); v != "" {
			line[i] = v
		} else {
			line[i] = "pass"
		}
	}
	return line
}

// Eval converts the result to a review evaluation at depth.
func (r *AnalysisResult) Eval(depth int) retro.Eval {
	return retro.Eval{
		Depth:    depth,
		Score:    r.RootInfo.Winrate,
		BestLine: r.BestLine(),
	}
}

// Analyze analyses the position after all of its moves.
func (e *Engine) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	turn := len(req.Position.Moves)
	results, err := e.analyzeTurns(ctx, req, []int{turn}, "position")
	if err != nil {
		return nil, err
	}
	return results[turn], nil
}

// AnalyzeTurns analyses the position after each of the given numbers of
// moves, in a single query for the turns not already cached.
func (e *Engine) AnalyzeTurns(ctx context.Context, req *AnalysisRequest, turns []int) (map[int]*AnalysisResult, error) {
	return e.analyzeTurns(ctx, req, turns, "analysis")
}

func (e *Engine) analyzeTurns(ctx context.Context, req *AnalysisRequest, turns []int, queryType string) (map[int]*AnalysisResult, error) {
	if err := ValidatePosition(req.Position); err != nil {
		return nil, fmt.Errorf("invalid position: %w", err)
	}
	for _, t := range turns {
		if t < 0 || t > len(req.Position.Moves) {
			return nil, fmt.Errorf("turn %d out of range 0..%d", t, len(req.Position.Moves))
		}
	}

	base := e.buildQuery(req)
	results := make(map[int]*AnalysisResult, len(turns))
	keys := make(map[int]string, len(turns))
	var missing []int

	for _, t := range turns {
		q := maps.Clone(base)
		q["analyzeTurns"] = []int{t}
		key, err := cache.Key(q)
		if err != nil {
			return nil, err
		}
		keys[t] = key

		if cached, ok := e.cache.Get(key); ok {
			e.metrics.RecordCacheHit()
			results[t] = cached
			continue
		}
		e.metrics.RecordCacheMiss()
		missing = append(missing, t)
	}

	if len(missing) == 0 {
		return results, nil
	}

	query := maps.Clone(base)
	query["analyzeTurns"] = missing

	start := time.Now()
	responses, err := e.send(ctx, query, len(missing))
	e.metrics.RecordEngineQuery(queryType, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	for _, resp := range responses {
		result := &AnalysisResult{
			Turn:      resp.TurnNumber,
			MoveInfos: resp.MoveInfos,
			RootInfo:  resp.RootInfo,
		}
		key, ok := keys[resp.TurnNumber]
		if !ok {
			return nil, fmt.Errorf("KataGo answered unrequested turn %d", resp.TurnNumber)
		}
		results[resp.TurnNumber] = result
		e.cache.Put(key, result)
	}

	return results, nil
}

func (e *Engine) buildQuery(req *AnalysisRequest) map[string]interface{} {
	pos := req.Position

	query := map[string]interface{}{
		"action":     "analyze",
		"rules":      pos.Rules,
		"boardXSize": pos.BoardXSize,
		"boardYSize": pos.BoardYSize,
	}
	if pos.Komi != 0 {
		query["komi"] = pos.Komi
	}
	if pos.InitialPlayer != "" {
		query["initialPlayer"] = pos.InitialPlayer
	}

	if len(pos.InitialStones) > 0 {
		stones := make([][]string, len(pos.InitialStones))
		for i, s := range pos.InitialStones {
			stones[i] = []string{s.Color, s.Location}
		}
		query["initialStones"] = stones
	}

	moves := make([][]string, len(pos.Moves))
	for i, m := range pos.Moves {
		loc := m.Location
		if loc == "" {
			loc = "pass"
		}
		moves[i] = []string{m.Color, loc}
	}
	query["moves"] = moves

	visits := e.config.MaxVisits
	if req.MaxVisits > 0 {
		visits = req.MaxVisits
	}
	query["maxVisits"] = visits

	overrides := map[string]interface{}{
		"reportAnalysisWinratesAs": "BLACK",
	}
	if e.config.MaxTime > 0 {
		overrides["maxTime"] = e.config.MaxTime
	}
	query["overrideSettings"] = overrides

	return query
}
