package retro

// Thresholds define how much win rate a move may lose before it is reviewed.
type Thresholds struct {
	Mistake float64 // Loss > this is a fault (default: 0.05)
	Blunder float64 // Loss >= this is labelled a blunder (default: 0.15)
}

// DefaultThresholds returns default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Mistake: 0.05,
		Blunder: 0.15,
	}
}

const (
	CategoryMistake = "mistake"
	CategoryBlunder = "blunder"
)

// Scanner finds the faults of one color in an analysed game.
type Scanner struct {
	thresholds Thresholds
	tree       Tree
}

// NewScanner creates a scanner. When tree is non-nil the scanner also checks
// that every fault has a solution node.
func NewScanner(thresholds Thresholds, tree Tree) *Scanner {
	return &Scanner{
		thresholds: thresholds,
		tree:       tree,
	}
}

// Loss returns how much win rate color gives away by moving from prev to node.
func Loss(color Player, prev, node Eval) float64 {
	return prev.PovScore(color) - node.PovScore(color)
}

// Scan returns the faults of color in mainline, earliest first. The mainline
// starts with the root ply and every ply must carry an evaluation.
func (s *Scanner) Scan(color Player, mainline []*Ply) ([]Fault, error) {
	for _, ply := range mainline {
		if ply.Eval == nil {
			return nil, &IncompleteAnalysisError{Path: ply.Path, Reason: "no evaluation"}
		}
	}

	faults := []Fault{}
	for i := 1; i < len(mainline); i++ {
		prev, node := mainline[i-1], mainline[i]
		if node.Color != color {
			continue
		}

		loss := Loss(color, *prev.Eval, *node.Eval)
		if loss <= s.thresholds.Mistake {
			continue
		}

		best, ok := prev.Eval.BestMove()
		if !ok {
			return nil, &IncompleteAnalysisError{Path: prev.Path, Reason: "no best line"}
		}
		// The engine's own choice is never reviewed, whatever the search noise.
		if best == node.Move {
			continue
		}
		if s.tree != nil {
			if _, ok := FindSolution(s.tree, prev); !ok {
				return nil, &IncompleteAnalysisError{Path: prev.Path, Reason: "solution not in tree"}
			}
		}

		category := CategoryMistake
		if loss >= s.thresholds.Blunder {
			category = CategoryBlunder
		}
		faults = append(faults, Fault{
			Node:     node,
			Prev:     prev,
			Color:    color,
			Loss:     loss,
			Category: category,
		})
	}

	return faults, nil
}

// FindSolution looks up the child of prev that plays the engine's best move.
func FindSolution(tree Tree, prev *Ply) (*Solution, bool) {
	if prev.Eval == nil {
		return nil, false
	}
	best, ok := prev.Eval.BestMove()
	if !ok {
		return nil, false
	}
	for _, child := range tree.Children(prev.Path) {
		if child.Move == best {
			return &Solution{Node: child}, true
		}
	}
	return nil, false
}
