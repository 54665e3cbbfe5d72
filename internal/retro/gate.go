package retro

// Verdict is the outcome of judging an attempted move.
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictWin
	VerdictFail
)

func (v Verdict) String() string {
	switch v {
	case VerdictWin:
		return "win"
	case VerdictFail:
		return "fail"
	default:
		return "pending"
	}
}

// Gate turns a deepening evaluation of an attempt into a verdict.
type Gate struct {
	// MinDepth is the depth at which displayed progress starts.
	MinDepth int
	// MaxDepth is the depth at which displayed progress reaches 100%.
	MaxDepth int
	// JudgeDepth is the first depth at which a verdict is given.
	JudgeDepth int
	// Tolerance is the largest loss still accepted as a good move.
	Tolerance float64
}

// NewGate creates a gate judging at minDepth.
func NewGate(minDepth, maxDepth int, tolerance float64) Gate {
	return Gate{
		MinDepth:   minDepth,
		MaxDepth:   maxDepth,
		JudgeDepth: minDepth,
		Tolerance:  tolerance,
	}
}

// Progress returns the displayed evaluation progress for depth, 0 to 100.
func (g Gate) Progress(depth int) float64 {
	span := g.MaxDepth - g.MinDepth
	if span <= 0 {
		if depth >= g.MaxDepth {
			return 100
		}
		return 0
	}
	ratio := float64(depth-g.MinDepth) / float64(span)
	return 100 * max(0, min(ratio, 1))
}

// Ready reports whether depth is deep enough to judge.
func (g Gate) Ready(depth int) bool {
	return depth >= max(g.JudgeDepth, g.MinDepth)
}

// Judge compares the attempt against the solution evaluated from the same
// position.
func (g Gate) Judge(color Player, attempt, solution Eval) Verdict {
	if !g.Ready(attempt.Depth) {
		return VerdictPending
	}
	if Loss(color, solution, attempt) <= g.Tolerance {
		return VerdictWin
	}
	return VerdictFail
}
