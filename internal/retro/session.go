package retro

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/google/uuid"
)

// Options configures a Session.
type Options struct {
	// ID names the session; a new UUID is used when empty.
	ID        string
	Gate      Gate
	Evaluator Evaluator
	Logger    logging.ContextLogger
	Observer  Observer
}

// attempt is the player's candidate move while it is being evaluated.
type attempt struct {
	id    string
	node  *Ply
	depth int
	eval  *Eval
	sub   Subscription
}

// Session walks one player through the faults of an analysed game.
type Session struct {
	id        string
	color     Player
	tree      Tree
	evaluator Evaluator
	gate      Gate
	logger    logging.ContextLogger
	observer  Observer

	mu      sync.Mutex
	faults  []Fault
	cursor  int
	state   State
	attempt *attempt
	tracker *Tracker
	closed  bool
}

// NewSession creates a session over faults, which must be ordered earliest
// first. The session starts on the first fault, or at the end when there is
// none.
func NewSession(color Player, faults []Fault, tree Tree, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLoggerAdapter(logging.NewLogger("[retro] ", "info"))
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		id:        id,
		color:     color,
		tree:      tree,
		evaluator: opts.Evaluator,
		gate:      opts.Gate,
		observer:  opts.Observer,
		faults:    faults,
		tracker:   NewTracker(len(faults)),
	}
	s.logger = logger.WithFields(map[string]interface{}{
		"review_id": s.id,
		"color":     color.String(),
	})

	s.mu.Lock()
	s.begin()
	s.mu.Unlock()

	s.logger.Info("Review session started", "faults", len(faults))
	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Color returns the player under review.
func (s *Session) Color() Player {
	return s.color
}

// Gate returns the evaluation gate used to judge attempts.
func (s *Session) Gate() Gate {
	return s.gate
}

// IsSolving reports whether the player is expected to produce a move.
func (s *Session) IsSolving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Solving()
}

// Nominal returns the stored state, before the off-track override.
func (s *Session) Nominal() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Feedback returns the state shown to the player.
func (s *Session) Feedback() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effective()
}

// Current returns the fault under review, or nil at the end.
func (s *Session) Current() *Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

// Solution returns the engine's best move for the current fault.
func (s *Session) Solution() (*Solution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current()
	if cur == nil {
		return nil, false
	}
	return FindSolution(s.tree, cur.Prev)
}

// ActiveNode returns the attempt while it is evaluated, otherwise the
// current fault's node. It is nil at the end.
func (s *Session) ActiveNode() *Ply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEval && s.attempt != nil {
		return s.attempt.node
	}
	if cur := s.current(); cur != nil {
		return cur.Node
	}
	return nil
}

// EvalProgress returns the displayed progress of the attempt's evaluation.
func (s *Session) EvalProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEval || s.attempt == nil {
		return 0
	}
	return s.gate.Progress(s.attempt.depth)
}

// Completion returns how many faults have been resolved out of the total.
func (s *Session) Completion() Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Completion()
}

// Snapshot is a consistent view of a session, read under one lock.
type Snapshot struct {
	Feedback     State
	Nominal      State
	Solving      bool
	Closed       bool
	Fault        *Fault
	Solution     *Solution
	Active       *Ply
	EvalProgress float64
	Completion   Completion
}

// Snapshot reads every displayed field of the session at once.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Feedback:   s.effective(),
		Nominal:    s.state,
		Solving:    s.state.Solving(),
		Closed:     s.closed,
		Fault:      s.current(),
		Completion: s.tracker.Completion(),
	}
	if snap.Fault != nil {
		snap.Active = snap.Fault.Node
		if sol, ok := FindSolution(s.tree, snap.Fault.Prev); ok {
			snap.Solution = sol
		}
	}
	if s.state == StateEval && s.attempt != nil {
		snap.Active = s.attempt.node
		snap.EvalProgress = s.gate.Progress(s.attempt.depth)
	}
	return snap
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// HandleJump reacts to the tree's displayed position having changed. A new
// child of the current fault's prev is an attempt: it fails immediately if
// it repeats the fault, otherwise it is sent for evaluation. Any other
// position only affects the off-track override.
func (s *Session) HandleJump(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	cur := s.current()
	if cur == nil || !s.state.Solving() {
		s.mu.Unlock()
		return nil
	}

	displayed := s.tree.DisplayedPath()
	if displayed == cur.Prev.Path || displayed.Parent() != cur.Prev.Path {
		s.mu.Unlock()
		return nil
	}
	if s.attempt != nil && s.attempt.node.Path == displayed {
		s.mu.Unlock()
		return nil
	}

	node, ok := s.tree.Node(displayed)
	if !ok {
		s.mu.Unlock()
		s.logger.Error("Displayed path not found in tree", "path", string(displayed))
		return nil
	}

	if node.Path == cur.Node.Path {
		s.cancelAttempt()
		s.logger.Debug("Attempt repeats the fault", "move", node.Move)
		s.conclude(*cur, VerdictFail)
		s.mu.Unlock()
		return nil
	}

	previous := s.state
	s.cancelAttempt()
	a := &attempt{id: uuid.NewString(), node: node}
	s.attempt = a
	s.state = StateEval
	s.logger.Debug("Evaluating attempt", "move", node.Move, "attempt_id", a.id)

	if node.Eval != nil && s.gate.Ready(node.Eval.Depth) {
		s.apply(a, *node.Eval)
		s.mu.Unlock()
		return nil
	}

	evaluator := s.evaluator
	s.mu.Unlock()

	if evaluator == nil {
		return nil
	}

	id := a.id
	sub, err := evaluator.Subscribe(ctx, node, func(ev Eval) {
		s.HandleEval(id, ev)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.attempt == a {
			s.attempt = nil
			s.state = previous
		}
		s.logger.Error("Failed to evaluate attempt", "move", node.Move, "error", err)
		return fmt.Errorf("failed to evaluate attempt: %w", err)
	}
	if s.attempt == a && !s.closed {
		a.sub = sub
	} else {
		sub.Unsubscribe()
	}
	return nil
}

// HandleEval applies an evaluation update for the attempt with attemptID.
// Updates for any other attempt and updates that are not deeper than the
// last applied one are ignored.
func (s *Session) HandleEval(attemptID string, ev Eval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.attempt == nil || s.attempt.id != attemptID {
		s.logger.Debug("Dropping stale evaluation", "attempt_id", attemptID, "depth", ev.Depth)
		return
	}
	if ev.Depth <= s.attempt.depth {
		return
	}
	s.apply(s.attempt, ev)
}

// AttemptID returns the identity of the live attempt, if any.
func (s *Session) AttemptID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return "", false
	}
	return s.attempt.id, true
}

// Skip gives up on the current fault and moves to the next one.
func (s *Session) Skip() error {
	return s.command("skip", func(state State) error {
		if state != StateFind && state != StateFail {
			return &TransitionError{Command: "skip", State: state}
		}
		s.resolve(ResolutionSkip)
		return nil
	})
}

// ViewSolution reveals the engine's best move for the current fault.
func (s *Session) ViewSolution() error {
	return s.command("viewSolution", func(state State) error {
		if state != StateFind && state != StateFail {
			return &TransitionError{Command: "viewSolution", State: state}
		}
		s.cancelAttempt()
		s.state = StateView
		if sol, ok := FindSolution(s.tree, s.current().Prev); ok {
			s.jump(sol.Node.Path)
		}
		return nil
	})
}

// JumpToNext moves on after a win or a viewed solution. When the player has
// browsed away it resumes the current fault instead.
func (s *Session) JumpToNext() error {
	return s.command("jumpToNext", func(state State) error {
		switch state {
		case StateWin:
			s.resolve(ResolutionWin)
		case StateView:
			s.resolve(ResolutionView)
		case StateOffTrack:
			s.cancelAttempt()
			s.state = StateFind
			s.jump(s.current().Prev.Path)
		default:
			return &TransitionError{Command: "jumpToNext", State: state}
		}
		return nil
	})
}

// Reset starts the review again from the first fault.
func (s *Session) Reset() error {
	return s.command("reset", func(state State) error {
		if state != StateEnd {
			return &TransitionError{Command: "reset", State: state}
		}
		s.tracker.Reset()
		s.begin()
		return nil
	})
}

// Close ends the session and stops any evaluation in flight.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.cancelAttempt()
	s.closed = true
	s.notifyCommand("close", nil)
	s.logger.Info("Review session closed", "completion", s.tracker.Completion().String())
	return nil
}

// command runs fn under the lock with the effective state.
func (s *Session) command(name string, fn func(State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	from := s.effective()
	err := fn(from)
	s.notifyCommand(name, err)
	if err != nil {
		s.logger.Warn("Rejected review command", "command", name, "state", from.String())
		return err
	}
	s.logger.Debug("Review command applied", "command", name, "from", from.String(), "to", s.state.String())
	return nil
}

// begin places the session on the first fault. Must be called with lock held.
func (s *Session) begin() {
	s.cancelAttempt()
	s.cursor = 0
	s.enter()
}

// resolve counts the current fault as done and advances. Must be called with
// lock held.
func (s *Session) resolve(how Resolution) {
	cur := s.current()
	s.cancelAttempt()
	s.tracker.Advance()
	if s.observer != nil && cur != nil {
		s.observer.OnResolved(s.color, *cur, how)
	}
	s.cursor++
	s.enter()
}

// enter sets the state for the fault at the cursor. Must be called with lock
// held.
func (s *Session) enter() {
	cur := s.current()
	if cur == nil {
		s.state = StateEnd
		return
	}
	s.state = StateFind
	s.jump(cur.Prev.Path)
}

// apply records an evaluation of a and concludes it when the gate has a
// verdict. Must be called with lock held.
func (s *Session) apply(a *attempt, ev Eval) {
	a.depth = ev.Depth
	a.eval = &ev

	cur := s.current()
	if s.state != StateEval || cur == nil {
		return
	}

	verdict := s.gate.Judge(s.color, ev, s.solutionEval(cur))
	if verdict == VerdictPending {
		return
	}
	s.cancelAttempt()
	s.conclude(*cur, verdict)
}

// solutionEval is the evaluation of the engine's move from the fault's prev.
// The prev's own evaluation stands in when that child has none.
func (s *Session) solutionEval(fault *Fault) Eval {
	if sol, ok := FindSolution(s.tree, fault.Prev); ok && sol.Node.Eval != nil {
		return *sol.Node.Eval
	}
	return *fault.Prev.Eval
}

// conclude moves to Win or Fail. Must be called with lock held.
func (s *Session) conclude(fault Fault, verdict Verdict) {
	if verdict == VerdictWin {
		s.state = StateWin
	} else {
		s.state = StateFail
		s.jump(fault.Prev.Path)
	}
	if s.observer != nil {
		s.observer.OnVerdict(s.color, fault, verdict)
	}
	s.logger.Info("Attempt judged", "verdict", verdict.String(), "fault", fault.Node.MoveNumber())
}

// cancelAttempt drops the live attempt. Must be called with lock held.
func (s *Session) cancelAttempt() {
	if s.attempt == nil {
		return
	}
	if s.attempt.sub != nil {
		s.attempt.sub.Unsubscribe()
	}
	s.attempt = nil
}

func (s *Session) jump(path Path) {
	if nav, ok := s.tree.(Navigator); ok {
		nav.Jump(path)
	}
}

func (s *Session) current() *Fault {
	if s.cursor >= len(s.faults) {
		return nil
	}
	f := s.faults[s.cursor]
	return &f
}

func (s *Session) effective() State {
	return EffectiveState(s.state, s.tree.DisplayedPath(), s.current())
}

func (s *Session) notifyCommand(name string, err error) {
	if s.observer != nil {
		s.observer.OnCommand(name, err)
	}
}
