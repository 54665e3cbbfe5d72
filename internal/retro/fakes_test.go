package retro

import (
	"context"
	"errors"
	"sync"
)

type fakeTree struct {
	mu        sync.Mutex
	nodes     map[Path]*Ply
	children  map[Path][]*Ply
	mainline  []*Ply
	displayed Path
	jumps     []Path
}

func newFakeTree(rootEval *Eval) *fakeTree {
	root := &Ply{Path: "", Ply: 0, Color: White, Eval: rootEval}
	return &fakeTree{
		nodes:    map[Path]*Ply{"": root},
		children: map[Path][]*Ply{},
		mainline: []*Ply{root},
	}
}

// add attaches a child and extends the mainline when mainline is true.
func (t *fakeTree) add(parent Path, id, move string, color Player, eval *Eval, mainline bool) *Ply {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.nodes[parent]
	node := &Ply{Path: parent.Child(id), Ply: p.Ply + 1, Move: move, Color: color, Eval: eval}
	t.nodes[node.Path] = node
	t.children[parent] = append(t.children[parent], node)
	if mainline {
		t.mainline = append(t.mainline, node)
	}
	return node
}

func (t *fakeTree) Node(path Path) (*Ply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[path]
	return n, ok
}

func (t *fakeTree) Children(path Path) []*Ply {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.children[path]
}

func (t *fakeTree) Mainline() []*Ply {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mainline
}

func (t *fakeTree) DisplayedPath() Path {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayed
}

func (t *fakeTree) Jump(path Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.displayed = path
	t.jumps = append(t.jumps, path)
}

// show changes the displayed path the way a user would, without recording a
// session-driven jump.
func (t *fakeTree) show(path Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.displayed = path
}

type fakeSub struct {
	node      *Ply
	fn        EvalFunc
	cancelled bool
}

func (s *fakeSub) Unsubscribe() {
	s.cancelled = true
}

type fakeEvaluator struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (f *fakeEvaluator) Subscribe(ctx context.Context, node *Ply, fn EvalFunc) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSub{node: node, fn: fn}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeEvaluator) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type recordedEvent struct {
	kind  string
	name  string
	fault Fault
}

type recordingObserver struct {
	events []recordedEvent
}

func (r *recordingObserver) OnVerdict(color Player, fault Fault, verdict Verdict) {
	r.events = append(r.events, recordedEvent{kind: "verdict", name: verdict.String(), fault: fault})
}

func (r *recordingObserver) OnResolved(color Player, fault Fault, resolution Resolution) {
	r.events = append(r.events, recordedEvent{kind: "resolved", name: string(resolution), fault: fault})
}

func (r *recordingObserver) OnCommand(command string, err error) {
	name := command
	if errors.Is(err, ErrInvalidTransition) {
		name += ":invalid"
	}
	r.events = append(r.events, recordedEvent{kind: "command", name: name})
}

func (r *recordingObserver) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// fixture is a short game in which White makes a blunder at ply 2 and a
// mistake at ply 4, while Black plays accurately.
type fixture struct {
	tree *fakeTree
	// white's faults: F1 at "aabb", F2 at "aabbccdd"
	ply1, ply2, ply3, ply4 *Ply
	sol1, sol2             *Ply
}

func newFixture() *fixture {
	t := newFakeTree(&Eval{Depth: 20, Score: 0.5, BestLine: []string{"Q16"}})
	f := &fixture{tree: t}
	f.ply1 = t.add("", "aa", "Q16", Black, &Eval{Depth: 20, Score: 0.5, BestLine: []string{"D4", "Q4"}}, true)
	f.ply2 = t.add("aa", "bb", "C3", White, &Eval{Depth: 20, Score: 0.7, BestLine: []string{"R4"}}, true)
	f.sol1 = t.add("aa", "ab", "D4", White, &Eval{Depth: 20, Score: 0.5, BestLine: []string{"Q4"}}, false)
	f.ply3 = t.add("aabb", "cc", "R4", Black, &Eval{Depth: 20, Score: 0.7, BestLine: []string{"Q3"}}, true)
	f.ply4 = t.add("aabbcc", "dd", "E5", White, &Eval{Depth: 20, Score: 0.8, BestLine: []string{"R3"}}, true)
	f.sol2 = t.add("aabbcc", "cd", "Q3", White, &Eval{Depth: 20, Score: 0.7, BestLine: []string{"R3"}}, false)
	return f
}

func (f *fixture) faults(color Player) []Fault {
	faults, err := NewScanner(DefaultThresholds(), f.tree).Scan(color, f.tree.Mainline())
	if err != nil {
		panic(err)
	}
	return faults
}

func testGate() Gate {
	return NewGate(8, 18, DefaultThresholds().Mistake)
}
