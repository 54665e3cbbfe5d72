package katago

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a board setup plus the moves played from it, in the shape the
// KataGo analysis engine expects.
type Position struct {
	Rules         string  `json:"rules"`
	BoardXSize    int     `json:"boardXSize"`
	BoardYSize    int     `json:"boardYSize"`
	InitialStones []Stone `json:"initialStones,omitempty"`
	Moves         []Move  `json:"moves"`
	InitialPlayer string  `json:"initialPlayer,omitempty"`
	Komi          float64 `json:"komi"`
}

type Stone struct {
	Color    string `json:"color"`
	Location string `json:"location"`
}

// Move is a played move. An empty Location is a pass.
type Move struct {
	Color    string `json:"color"`
	Location string `json:"location"`
}

// Clone returns a deep copy, so callers can append moves safely.
func (p *Position) Clone() *Position {
	c := *p
	c.InitialStones = append([]Stone(nil), p.InitialStones...)
	c.Moves = append([]Move(nil), p.Moves...)
	return &c
}

// NextPlayer returns "b" or "w" for the side to move after all Moves.
func (p *Position) NextPlayer() string {
	if n := len(p.Moves); n > 0 {
		return opposite(p.Moves[n-1].Color)
	}
	if p.InitialPlayer != "" {
		return p.InitialPlayer
	}
	return "b"
}

func opposite(color string) string {
	if color == "b" {
		return "w"
	}
	return "b"
}

const gtpColumns = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

// SGFToGTP converts an SGF point such as "dd" to a GTP vertex such as "D16"
// on a board ySize rows high. An empty point or "tt" on boards up to 19 is a
// pass and returns "".
func SGFToGTP(point string, xSize, ySize int) (string, error) {
	if point == "" || (point == "tt" && xSize <= 19 && ySize <= 19) {
		return "", nil
	}
	if len(point) != 2 {
		return "", fmt.Errorf("invalid SGF point %q", point)
	}

	x := int(point[0] - 'a')
	y := int(point[1] - 'a')
	if x < 0 || x >= xSize || y < 0 || y >= ySize {
		return "", fmt.Errorf("SGF point %q is off a %dx%d board", point, xSize, ySize)
	}

	return fmt.Sprintf("%c%d", gtpColumns[x], ySize-y), nil
}

// GTPToSGF converts a GTP vertex back to an SGF point. "" and "pass" become
// "tt".
func GTPToSGF(vertex string, xSize, ySize int) (string, error) {
	x, y, pass, err := ParseVertex(vertex, xSize, ySize)
	if err != nil {
		return "", err
	}
	if pass {
		return "tt", nil
	}
	return string([]byte{byte('a' + x), byte('a' + y)}), nil
}

// ParseVertex returns the zero-based column and row, counted from the top
// left, of a GTP vertex.
func ParseVertex(vertex string, xSize, ySize int) (x, y int, pass bool, err error) {
	v := strings.ToUpper(strings.TrimSpace(vertex))
	if v == "" || v == "PASS" {
		return 0, 0, true, nil
	}
	if len(v) < 2 {
		return 0, 0, false, fmt.Errorf("invalid vertex %q", vertex)
	}

	x = strings.IndexByte(gtpColumns, v[0])
	row, convErr := strconv.Atoi(v[1:])
	if x < 0 || convErr != nil {
		return 0, 0, false, fmt.Errorf("invalid vertex %q", vertex)
	}
	if x >= xSize || row < 1 || row > ySize {
		return 0, 0, false, fmt.Errorf("vertex %s is off a %dx%d board", v, xSize, ySize)
	}
	return x, ySize - row, false, nil
}

// NormalizeVertex upper-cases a vertex and maps pass spellings to "".
func NormalizeVertex(vertex string) string {
	v := strings.ToUpper(strings.TrimSpace(vertex))
	if v == "PASS" {
		return ""
	}
	return v
}

var validRules = map[string]bool{
	"chinese":      true,
	"japanese":     true,
	"korean":       true,
	"aga":          true,
	"new_zealand":  true,
	"tromp-taylor": true,
}

// ValidatePosition checks a position before it is sent to KataGo.
func ValidatePosition(pos *Position) error {
	if pos == nil {
		return fmt.Errorf("no position")
	}
	if pos.BoardXSize < 2 || pos.BoardXSize > 25 || pos.BoardYSize < 2 || pos.BoardYSize > 25 {
		return fmt.Errorf("invalid board size: %dx%d", pos.BoardXSize, pos.BoardYSize)
	}
	if !validRules[pos.Rules] {
		return fmt.Errorf("invalid rules: %s", pos.Rules)
	}

	for i, move := range pos.Moves {
		if move.Color != "b" && move.Color != "w" {
			return fmt.Errorf("invalid color in move %d: %s", i, move.Color)
		}
		if _, _, _, err := ParseVertex(move.Location, pos.BoardXSize, pos.BoardYSize); err != nil {
			return fmt.Errorf("invalid location in move %d: %w", i, err)
		}
	}

	for i, stone := range pos.InitialStones {
		if stone.Color != "b" && stone.Color != "w" {
			return fmt.Errorf("invalid color in initial stone %d: %s", i, stone.Color)
		}
		_, _, pass, err := ParseVertex(stone.Location, pos.BoardXSize, pos.BoardYSize)
		if err != nil || pass {
			return fmt.Errorf("invalid location in initial stone %d: %s", i, stone.Location)
		}
	}

	return nil
}
