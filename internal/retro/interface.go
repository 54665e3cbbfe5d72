package retro

import "context"

// Tree is the read-only view of the move tree a session needs.
type Tree interface {
	// Node returns the ply at path.
	Node(path Path) (*Ply, bool)

	// Children returns the children of the node at path, mainline first.
	Children(path Path) []*Ply

	// Mainline returns the game as played, starting with the root.
	Mainline() []*Ply

	// DisplayedPath returns the path of the position currently shown.
	DisplayedPath() Path
}

// Navigator is implemented by trees that let the session move the displayed
// position. Jump must not call back into the session.
type Navigator interface {
	Jump(path Path)
}

// EvalFunc receives evaluation updates for a subscribed ply.
type EvalFunc func(Eval)

// Subscription is a live evaluation stream.
type Subscription interface {
	// Unsubscribe stops further updates. It must not wait for callbacks
	// that are already running.
	Unsubscribe()
}

// Evaluator streams deepening evaluations of a ply.
type Evaluator interface {
	Subscribe(ctx context.Context, node *Ply, fn EvalFunc) (Subscription, error)
}

// Resolution is how a fault was resolved.
type Resolution string

const (
	ResolutionWin  Resolution = "win"
	ResolutionView Resolution = "view"
	ResolutionSkip Resolution = "skip"
)

// Observer is notified of session events. It is called while the session is
// locked and must not call back into it.
type Observer interface {
	OnVerdict(color Player, fault Fault, verdict Verdict)
	OnResolved(color Player, fault Fault, resolution Resolution)
	OnCommand(command string, err error)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) OnVerdict(color Player, fault Fault, verdict Verdict) {
	for _, obs := range o {
		obs.OnVerdict(color, fault, verdict)
	}
}

func (o Observers) OnResolved(color Player, fault Fault, resolution Resolution) {
	for _, obs := range o {
		obs.OnResolved(color, fault, resolution)
	}
}

func (o Observers) OnCommand(command string, err error) {
	for _, obs := range o {
		obs.OnCommand(command, err)
	}
}
