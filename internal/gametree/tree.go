// Package gametree is the in-memory move tree a review runs on. Node IDs are
// SGF points, so a path spells out the moves from the root.
package gametree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dmmcquay/katago-retro/internal/katago"
	"github.com/dmmcquay/katago-retro/internal/retro"
)

// ErrNoNode is returned for paths that are not in the tree.
var ErrNoNode = errors.New("no such node")

// PassID is the node ID of a pass.
const PassID = "tt"

// MaxBoardSize is the largest board whose points cannot collide with PassID.
const MaxBoardSize = 19

type node struct {
	// ply is replaced, never mutated, so handed-out pointers stay consistent.
	ply      *retro.Ply
	children []*node
}

// Tree is a move tree with a displayed position. It is safe for concurrent
// use.
type Tree struct {
	mu        sync.RWMutex
	setup     *katago.Position
	root      *node
	nodes     map[retro.Path]*node
	mainline  []*node
	displayed retro.Path
}

var (
	_ retro.Tree      = (*Tree)(nil)
	_ retro.Navigator = (*Tree)(nil)
)

// FromPosition builds a tree whose mainline is the game in pos. The
// displayed position is the root.
func FromPosition(pos *katago.Position) (*Tree, error) {
	if err := katago.ValidatePosition(pos); err != nil {
		return nil, err
	}
	if pos.BoardXSize > MaxBoardSize || pos.BoardYSize > MaxBoardSize {
		return nil, fmt.Errorf("board %dx%d is larger than %dx%d", pos.BoardXSize, pos.BoardYSize, MaxBoardSize, MaxBoardSize)
	}
	if _, err := boardFromPosition(pos); err != nil {
		return nil, fmt.Errorf("illegal game: %w", err)
	}

	setup := pos.Clone()
	setup.Moves = nil

	// The root's color is the side that did not move first.
	firstMover := setup.NextPlayer()
	if len(pos.Moves) > 0 {
		firstMover = pos.Moves[0].Color
	}
	root := &node{ply: &retro.Ply{Color: playerOf(firstMover).Opposite()}}

	t := &Tree{
		setup:    setup,
		root:     root,
		nodes:    map[retro.Path]*node{"": root},
		mainline: []*node{root},
	}

	parent := root
	for _, m := range pos.Moves {
		child, err := t.addChild(parent, playerOf(m.Color), m.Location)
		if err != nil {
			return nil, err
		}
		t.mainline = append(t.mainline, child)
		parent = child
	}
	return t, nil
}

// Setup returns the board setup the game starts from.
func (t *Tree) Setup() *katago.Position {
	return t.setup.Clone()
}

func (t *Tree) Node(path retro.Path) (*retro.Ply, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[path]
	if !ok {
		return nil, false
	}
	return n.ply, true
}

func (t *Tree) Children(path retro.Path) []*retro.Ply {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[path]
	if !ok {
		return nil
	}
	out := make([]*retro.Ply, len(n.children))
	for i, c := range n.children {
		out[i] = c.ply
	}
	return out
}

func (t *Tree) Mainline() []*retro.Ply {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*retro.Ply, len(t.mainline))
	for i, n := range t.mainline {
		out[i] = n.ply
	}
	return out
}

func (t *Tree) DisplayedPath() retro.Path {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.displayed
}

// Jump displays the node at path. Unknown paths are ignored.
func (t *Tree) Jump(path retro.Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[path]; ok {
		t.displayed = path
	}
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Play plays vertex from the node at path and displays the resulting node.
// Playing a move that already exists there reuses its node.
func (t *Tree) Play(path retro.Path, vertex string) (*retro.Ply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	child, err := t.play(path, vertex)
	if err != nil {
		return nil, err
	}
	t.displayed = child.ply.Path
	return child.ply, nil
}

// AddChild adds vertex as a variation from path without changing the
// displayed position, attaching ev when it is non-nil.
func (t *Tree) AddChild(path retro.Path, vertex string, ev *retro.Eval) (*retro.Ply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	child, err := t.play(path, vertex)
	if err != nil {
		return nil, err
	}
	if ev != nil && child.ply.Eval == nil {
		t.setEval(child, *ev)
	}
	return child.ply, nil
}

// SetEval attaches an evaluation to the node at path.
func (t *Tree) SetEval(path retro.Path, ev retro.Eval) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[path]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoNode, path)
	}
	t.setEval(n, ev)
	return nil
}

// PositionAt returns the setup plus the moves leading to path.
func (t *Tree) PositionAt(path retro.Path) (*katago.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positionAt(path)
}

// PathOf returns the path reached by playing the GTP vertices in order from
// the root. It only names the path; the nodes need not exist.
func (t *Tree) PathOf(vertices ...string) (retro.Path, error) {
	var path retro.Path
	for _, v := range vertices {
		id, err := katago.GTPToSGF(v, t.setup.BoardXSize, t.setup.BoardYSize)
		if err != nil {
			return "", err
		}
		path = path.Child(id)
	}
	return path, nil
}

func (t *Tree) play(path retro.Path, vertex string) (*node, error) {
	parent, ok := t.nodes[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoNode, path)
	}

	pos, err := t.positionAt(path)
	if err != nil {
		return nil, err
	}
	b, err := boardFromPosition(pos)
	if err != nil {
		return nil, err
	}
	color := pos.NextPlayer()
	if err := b.play(color, vertex); err != nil {
		return nil, fmt.Errorf("illegal move %s: %w", vertex, err)
	}

	return t.addChild(parent, playerOf(color), vertex)
}

// addChild links a move under parent, reusing an existing child for the
// same point. Must be called with the write lock held, or before the tree
// is shared.
func (t *Tree) addChild(parent *node, color retro.Player, vertex string) (*node, error) {
	id, err := katago.GTPToSGF(vertex, t.setup.BoardXSize, t.setup.BoardYSize)
	if err != nil {
		return nil, err
	}
	path := parent.ply.Path.Child(id)
	if n, ok := t.nodes[path]; ok {
		return n, nil
	}

	child := &node{ply: &retro.Ply{
		Path:  path,
		Ply:   parent.ply.Ply + 1,
		Move:  katago.NormalizeVertex(vertex),
		Color: color,
	}}
	parent.children = append(parent.children, child)
	t.nodes[path] = child
	return child, nil
}

func (t *Tree) setEval(n *node, ev retro.Eval) {
	ply := *n.ply
	ply.Eval = &ev
	n.ply = &ply
}

func (t *Tree) positionAt(path retro.Path) (*katago.Position, error) {
	if _, ok := t.nodes[path]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoNode, path)
	}

	pos := t.setup.Clone()
	for depth := 1; depth <= path.Depth(); depth++ {
		n := t.nodes[path[:depth*retro.IDWidth]]
		loc := n.ply.Move
		pos.Moves = append(pos.Moves, katago.Move{Color: colorOf(n.ply.Color), Location: loc})
	}
	return pos, nil
}

func playerOf(color string) retro.Player {
	if color == "w" {
		return retro.White
	}
	return retro.Black
}

func colorOf(p retro.Player) string {
	if p == retro.White {
		return "w"
	}
	return "b"
}
