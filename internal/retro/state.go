package retro

// State is the feedback tag of a review session.
type State int

const (
	StateFind State = iota
	StateOffTrack
	StateFail
	StateWin
	StateView
	StateEval
	// StateEnd means every fault has been resolved, or there were none.
	StateEnd
)

var stateNames = map[State]string{
	StateFind:     "find",
	StateOffTrack: "offTrack",
	StateFail:     "fail",
	StateWin:      "win",
	StateView:     "view",
	StateEval:     "eval",
	StateEnd:      "end",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Tag returns the legacy feedback tag, where the end of a review is reported
// as "find" with no current fault.
func (s State) Tag() string {
	if s == StateEnd {
		return stateNames[StateFind]
	}
	return s.String()
}

// Solving reports whether the player is expected to produce a move.
func (s State) Solving() bool {
	return s == StateFind || s == StateFail || s == StateEval
}

// EffectiveState derives the state shown to consumers from the stored
// nominal state. A solving session whose displayed position is not the
// current fault's prev is off track. While an attempt is evaluated, any
// move played from prev is still on track. Nothing is mutated.
func EffectiveState(nominal State, displayed Path, current *Fault) State {
	if !nominal.Solving() || current == nil || displayed == current.Prev.Path {
		return nominal
	}
	if nominal == StateEval && displayed != "" && displayed.Parent() == current.Prev.Path {
		return nominal
	}
	return StateOffTrack
}
