package retro

import (
	"fmt"
	"strings"
)

// Player is one side of the game.
type Player int

const (
	Black Player = iota
	White
)

// ParsePlayer accepts "b", "black", "w" or "white" in any case.
func ParsePlayer(s string) (Player, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "black":
		return Black, nil
	case "w", "white":
		return White, nil
	default:
		return Black, fmt.Errorf("invalid player: %q", s)
	}
}

// Opposite returns the other player.
func (p Player) Opposite() Player {
	if p == Black {
		return White
	}
	return Black
}

func (p Player) String() string {
	if p == White {
		return "white"
	}
	return "black"
}

// Short returns the single letter form used by KataGo and SGF.
func (p Player) Short() string {
	if p == White {
		return "W"
	}
	return "B"
}

// Path identifies a node in the move tree. It is the concatenation of
// fixed-width node IDs from the root, so the root path is empty.
type Path string

// IDWidth is the width of a single node ID within a Path.
const IDWidth = 2

// Child returns the path of the child with the given node ID.
func (p Path) Child(id string) Path {
	return p + Path(id)
}

// Parent returns the path of the parent node. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) < IDWidth {
		return ""
	}
	return p[:len(p)-IDWidth]
}

// Depth returns the number of moves from the root.
func (p Path) Depth() int {
	return len(p) / IDWidth
}

// LastID returns the node ID of the last move on the path.
func (p Path) LastID() string {
	if len(p) < IDWidth {
		return ""
	}
	return string(p[len(p)-IDWidth:])
}

// IsPrefixOf reports whether other lies in the subtree rooted at p.
func (p Path) IsPrefixOf(other Path) bool {
	return strings.HasPrefix(string(other), string(p))
}

// Eval is an engine evaluation of a position.
type Eval struct {
	Depth int `json:"depth"`
	// Score is Black's winning probability in [0,1].
	Score    float64  `json:"score"`
	BestLine []string `json:"bestLine,omitempty"`
}

// PovScore returns the score from the point of view of color.
func (e Eval) PovScore(color Player) float64 {
	if color == White {
		return 1 - e.Score
	}
	return e.Score
}

// BestMove returns the first move of the best line, if any. A pass is
// returned as "", matching Ply.Move.
func (e Eval) BestMove() (string, bool) {
	if len(e.BestLine) == 0 {
		return "", false
	}
	if strings.EqualFold(e.BestLine[0], "pass") {
		return "", true
	}
	return e.BestLine[0], true
}

// Ply is a position node in the move tree. It is owned by the tree and
// must be treated as read-only.
type Ply struct {
	Path Path `json:"path"`
	// Ply counts moves from the root; the root is 0.
	Ply int `json:"ply"`
	// Move is the GTP coordinate of the move reaching this node, "" for a pass.
	Move string `json:"move"`
	// Color is the side that played Move.
	Color Player `json:"color"`
	Eval  *Eval  `json:"eval,omitempty"`
}

// MoveNumber formats the ply the way review output shows it, e.g. "37. D4".
func (p *Ply) MoveNumber() string {
	move := p.Move
	if move == "" {
		move = "pass"
	}
	return fmt.Sprintf("%d. %s", p.Ply, move)
}

// Fault is a move judged a mistake together with the position before it.
type Fault struct {
	Node  *Ply   `json:"node"`
	Prev  *Ply   `json:"prev"`
	Color Player `json:"color"`
	// Loss is the win rate the move gave away, from Color's point of view.
	Loss     float64 `json:"loss"`
	Category string  `json:"category"`
}

// Solution is the engine's preferred move from a fault's prev position.
type Solution struct {
	Node *Ply `json:"node"`
}

// Completion is the review progress for one color.
type Completion struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// Shown is the 1-based position displayed to the player. It never exceeds
// Total.
func (c Completion) Shown() int {
	return min(c.Index+1, c.Total)
}

func (c Completion) String() string {
	return fmt.Sprintf("%d / %d", c.Shown(), c.Total)
}
