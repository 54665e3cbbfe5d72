package coach

import (
	"fmt"
	"strings"

	"github.com/dmmcquay/katago-retro/internal/retro"
)

// FaultInfo describes the fault under review.
type FaultInfo struct {
	MoveNumber string     `json:"moveNumber"`
	Move       string     `json:"move"`
	Path       retro.Path `json:"path"`
	PrevPath   retro.Path `json:"prevPath"`
	Category   string     `json:"category"`
	Loss       float64    `json:"loss"`
}

// Status is a snapshot of a review for presentation.
type Status struct {
	ReviewID    string `json:"reviewId"`
	Color       string `json:"color"`
	BlackPlayer string `json:"blackPlayer,omitempty"`
	WhitePlayer string `json:"whitePlayer,omitempty"`
	// Feedback is the state shown to the player, with the off-track
	// override applied.
	Feedback string     `json:"feedback"`
	Nominal  string     `json:"nominal"`
	Solving  bool       `json:"solving"`
	Closed   bool       `json:"closed"`
	Fault    *FaultInfo `json:"fault,omitempty"`
	// Solution is only revealed once the fault is won or viewed.
	Solution     string           `json:"solution,omitempty"`
	SolutionPath retro.Path       `json:"solutionPath,omitempty"`
	Attempt      string           `json:"attempt,omitempty"`
	EvalProgress float64          `json:"evalProgress"`
	Completion   retro.Completion `json:"completion"`
	Displayed    retro.Path       `json:"displayed"`
	FullAnalysis bool             `json:"fullAnalysis"`
}

// status must be called with r.mu held.
func (c *Coach) status(r *review) *Status {
	snap := r.session.Snapshot()

	st := &Status{
		ReviewID:     r.id,
		Color:        r.session.Color().String(),
		BlackPlayer:  r.game.Info.BlackPlayer,
		WhitePlayer:  r.game.Info.WhitePlayer,
		Feedback:     snap.Feedback.String(),
		Nominal:      snap.Nominal.String(),
		Solving:      snap.Solving,
		Closed:       snap.Closed,
		EvalProgress: snap.EvalProgress,
		Completion:   snap.Completion,
		Displayed:    r.tree.DisplayedPath(),
		FullAnalysis: r.analysis.Complete(len(r.game.Position.Moves)),
	}

	if cur := snap.Fault; cur != nil {
		st.Fault = &FaultInfo{
			MoveNumber: cur.Node.MoveNumber(),
			Move:       displayMove(cur.Node.Move),
			Path:       cur.Node.Path,
			PrevPath:   cur.Prev.Path,
			Category:   cur.Category,
			Loss:       cur.Loss,
		}
		if sol := snap.Solution; sol != nil && (snap.Feedback == retro.StateWin || snap.Feedback == retro.StateView) {
			st.Solution = displayMove(sol.Node.Move)
			st.SolutionPath = sol.Node.Path
		}
	}
	if snap.Feedback == retro.StateEval && snap.Active != nil {
		st.Attempt = displayMove(snap.Active.Move)
	}
	return st
}

// Text renders the status as the short summary the tools return.
func (s *Status) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review %s (%s)\n", s.ReviewID, s.Color)
	if s.BlackPlayer != "" || s.WhitePlayer != "" {
		fmt.Fprintf(&b, "Game: %s (B) vs %s (W)\n", orUnknown(s.BlackPlayer), orUnknown(s.WhitePlayer))
	}
	fmt.Fprintf(&b, "Feedback: %s\n", s.Feedback)
	fmt.Fprintf(&b, "Progress: %s\n", s.Completion)

	if s.Closed {
		b.WriteString("The review is closed.\n")
		return b.String()
	}

	if s.Fault == nil {
		if s.Completion.Total == 0 {
			fmt.Fprintf(&b, "No mistakes found for %s.\n", s.Color)
			b.WriteString("Flip to review the other player.\n")
		} else {
			fmt.Fprintf(&b, "Done reviewing %s mistakes.\n", s.Color)
			b.WriteString("Reset to review them again, or flip to review the other player.\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Mistake: %s (%s, -%.1f%%)\n", s.Fault.MoveNumber, s.Fault.Category, 100*s.Fault.Loss)

	switch s.Feedback {
	case "find":
		fmt.Fprintf(&b, "Find a better move for %s.\n", s.Color)
	case "offTrack":
		b.WriteString("You left the position; jump to next to resume.\n")
	case "fail":
		b.WriteString("That move is not good enough. Try again, view the solution or skip.\n")
	case "eval":
		fmt.Fprintf(&b, "Evaluating %s: %.0f%%\n", s.Attempt, s.EvalProgress)
	case "win":
		b.WriteString("Good move!\n")
	case "view":
		b.WriteString("Here is the engine's move.\n")
	}
	if s.Solution != "" {
		fmt.Fprintf(&b, "Solution: %s\n", s.Solution)
	}
	return b.String()
}

func displayMove(move string) string {
	if move == "" {
		return "pass"
	}
	return move
}

func orUnknown(name string) string {
	if name == "" {
		return "?"
	}
	return name
}
