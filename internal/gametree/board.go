package gametree

import (
	"errors"
	"fmt"

	"github.com/dmmcquay/katago-retro/internal/katago"
)

var (
	ErrOccupied = errors.New("point is occupied")
	ErrSuicide  = errors.New("move is suicide")
	ErrKo       = errors.New("move retakes a ko")
)

type stone int8

const (
	empty stone = iota
	black
	white
)

func stoneOf(color string) stone {
	if color == "w" {
		return white
	}
	return black
}

func (s stone) other() stone {
	if s == black {
		return white
	}
	return black
}

type point struct{ x, y int }

// board replays moves to check legality. It knows captures, suicide and
// simple ko, which is all KataGo needs us to reject up front.
type board struct {
	width, height int
	grid          [][]stone
	ko            *point
}

func newBoard(width, height int) *board {
	grid := make([][]stone, height)
	for y := range grid {
		grid[y] = make([]stone, width)
	}
	return &board{width: width, height: height, grid: grid}
}

func boardFromPosition(pos *katago.Position) (*board, error) {
	b := newBoard(pos.BoardXSize, pos.BoardYSize)
	for _, s := range pos.InitialStones {
		x, y, pass, err := katago.ParseVertex(s.Location, b.width, b.height)
		if err != nil || pass {
			return nil, fmt.Errorf("invalid setup stone %q", s.Location)
		}
		b.grid[y][x] = stoneOf(s.Color)
	}
	for i, m := range pos.Moves {
		if err := b.play(m.Color, m.Location); err != nil {
			return nil, fmt.Errorf("move %d (%s %s): %w", i+1, m.Color, m.Location, err)
		}
	}
	return b, nil
}

// play places a stone for color at the GTP vertex, "" being a pass.
func (b *board) play(color, vertex string) error {
	x, y, pass, err := katago.ParseVertex(vertex, b.width, b.height)
	if err != nil {
		return err
	}
	if pass {
		b.ko = nil
		return nil
	}
	if b.grid[y][x] != empty {
		return ErrOccupied
	}
	if b.ko != nil && b.ko.x == x && b.ko.y == y {
		return ErrKo
	}

	me := stoneOf(color)
	b.grid[y][x] = me

	var captured []point
	for _, n := range b.neighbors(x, y) {
		if b.grid[n.y][n.x] != me.other() {
			continue
		}
		group, libs := b.group(n.x, n.y)
		if libs == 0 {
			for _, p := range group {
				b.grid[p.y][p.x] = empty
			}
			captured = append(captured, group...)
		}
	}

	group, libs := b.group(x, y)
	if libs == 0 {
		b.grid[y][x] = empty
		return ErrSuicide
	}

	b.ko = nil
	if len(captured) == 1 && len(group) == 1 && libs == 1 {
		b.ko = &captured[0]
	}
	return nil
}

func (b *board) neighbors(x, y int) []point {
	out := make([]point, 0, 4)
	for _, d := range [4]point{{0, 1}, {1, 0}, {0, -1}, {-1, 0}} {
		nx, ny := x+d.x, y+d.y
		if nx >= 0 && nx < b.width && ny >= 0 && ny < b.height {
			out = append(out, point{nx, ny})
		}
	}
	return out
}

// group returns the chain containing (x, y) and its number of liberties.
func (b *board) group(x, y int) ([]point, int) {
	color := b.grid[y][x]
	seen := map[point]bool{{x, y}: true}
	libs := map[point]bool{}
	stack := []point{{x, y}}
	var chain []point

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		chain = append(chain, p)

		for _, n := range b.neighbors(p.x, p.y) {
			switch b.grid[n.y][n.x] {
			case empty:
				libs[n] = true
			case color:
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return chain, len(libs)
}
