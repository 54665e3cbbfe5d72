package katago

import (
	"fmt"
	"strconv"
	"strings"
)

// GameInfo holds the SGF root properties shown in review summaries.
type GameInfo struct {
	BlackPlayer string `json:"blackPlayer,omitempty"`
	WhitePlayer string `json:"whitePlayer,omitempty"`
	Result      string `json:"result,omitempty"`
	Date        string `json:"date,omitempty"`
	Event       string `json:"event,omitempty"`
}

// Game is a parsed SGF record: its mainline as a Position plus game info.
type Game struct {
	Position *Position
	Info     GameInfo
}

// ParseSGF parses the first game in content and follows its mainline.
func ParseSGF(content string) (*Game, error) {
	return NewSGFParser(content).Parse()
}

// SGFParser reads an SGF game record. Only the first variation at each
// branch is followed.
type SGFParser struct {
	content string
	index   int

	size   [2]int
	moves  []rawPoint
	stones []rawPoint
}

type rawPoint struct {
	color string
	point string
}

func NewSGFParser(content string) *SGFParser {
	return &SGFParser{
		content: strings.TrimSpace(content),
		size:    [2]int{19, 19},
	}
}

func (p *SGFParser) Parse() (*Game, error) {
	if !p.skipTo('(') {
		return nil, fmt.Errorf("invalid SGF: no opening parenthesis")
	}
	p.index++

	game := &Game{
		Position: &Position{
			Rules: "chinese",
			Moves: []Move{},
		},
	}

	for p.index < len(p.content) {
		p.skipWhitespace()
		if p.index >= len(p.content) {
			break
		}

		switch p.content[p.index] {
		case ')':
			// End of the mainline; sibling variations are not followed.
			return p.finish(game)
		case ';':
			p.index++
			if err := p.parseNode(game); err != nil {
				return nil, err
			}
		case '(':
			p.index++
		default:
			return nil, fmt.Errorf("unexpected %q at position %d", p.content[p.index], p.index)
		}
	}

	return p.finish(game)
}

func (p *SGFParser) finish(game *Game) (*Game, error) {
	pos := game.Position
	pos.BoardXSize, pos.BoardYSize = p.size[0], p.size[1]

	for _, raw := range p.stones {
		loc, err := SGFToGTP(raw.point, pos.BoardXSize, pos.BoardYSize)
		if err != nil {
			return nil, fmt.Errorf("setup stone: %w", err)
		}
		if loc != "" {
			pos.InitialStones = append(pos.InitialStones, Stone{Color: raw.color, Location: loc})
		}
	}
	for i, raw := range p.moves {
		loc, err := SGFToGTP(raw.point, pos.BoardXSize, pos.BoardYSize)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
		pos.Moves = append(pos.Moves, Move{Color: raw.color, Location: loc})
	}

	if pos.InitialPlayer == "" && len(pos.Moves) > 0 {
		pos.InitialPlayer = pos.Moves[0].Color
	}

	return game, nil
}

func (p *SGFParser) parseNode(game *Game) error {
	for p.index < len(p.content) {
		p.skipWhitespace()
		if p.index >= len(p.content) || strings.IndexByte(";()", p.content[p.index]) >= 0 {
			break
		}

		prop, values, err := p.parseProperty()
		if err != nil {
			return err
		}
		if err := p.applyProperty(game, prop, values); err != nil {
			return err
		}
	}
	return nil
}

func (p *SGFParser) applyProperty(game *Game, prop string, values []string) error {
	pos := game.Position

	switch prop {
	case "B", "W":
		p.moves = append(p.moves, rawPoint{color: strings.ToLower(prop), point: values[0]})

	case "AB", "AW":
		color := strings.ToLower(prop[1:])
		for _, v := range values {
			points, err := expandPointList(v)
			if err != nil {
				return err
			}
			for _, pt := range points {
				p.stones = append(p.stones, rawPoint{color: color, point: pt})
			}
		}

	case "SZ":
		x, y, err := parseBoardSize(values[0])
		if err != nil {
			return err
		}
		p.size = [2]int{x, y}

	case "KM":
		if komi, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64); err == nil {
			pos.Komi = komi
		}

	case "RU":
		pos.Rules = normalizeRules(values[0])

	case "PL":
		switch strings.ToUpper(strings.TrimSpace(values[0])) {
		case "B":
			pos.InitialPlayer = "b"
		case "W":
			pos.InitialPlayer = "w"
		}

	case "PB":
		game.Info.BlackPlayer = values[0]
	case "PW":
		game.Info.WhitePlayer = values[0]
	case "RE":
		game.Info.Result = values[0]
	case "DT":
		game.Info.Date = values[0]
	case "EV":
		game.Info.Event = values[0]
	}

	return nil
}

func normalizeRules(ru string) string {
	rules := strings.ToLower(ru)
	switch {
	case strings.Contains(rules, "japan"):
		return "japanese"
	case strings.Contains(rules, "korea"):
		return "korean"
	case strings.Contains(rules, "aga"):
		return "aga"
	case strings.Contains(rules, "new zealand"), strings.Contains(rules, "nz"):
		return "new_zealand"
	case strings.Contains(rules, "tromp"):
		return "tromp-taylor"
	default:
		return "chinese"
	}
}

// parseBoardSize accepts "19" or the rectangular form "19:13".
func parseBoardSize(v string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid board size %q", v)
	}
	y := x
	if len(parts) == 2 {
		if y, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, fmt.Errorf("invalid board size %q", v)
		}
	}
	if x < 2 || x > 25 || y < 2 || y > 25 {
		return 0, 0, fmt.Errorf("unsupported board size %dx%d", x, y)
	}
	return x, y, nil
}

// expandPointList expands the compressed rectangle form "aa:cc".
func expandPointList(v string) ([]string, error) {
	if v == "" {
		return nil, nil
	}
	from, to, ok := strings.Cut(v, ":")
	if !ok {
		return []string{v}, nil
	}
	if len(from) != 2 || len(to) != 2 {
		return nil, fmt.Errorf("invalid point list %q", v)
	}

	var points []string
	for x := min(from[0], to[0]); x <= max(from[0], to[0]); x++ {
		for y := min(from[1], to[1]); y <= max(from[1], to[1]); y++ {
			points = append(points, string([]byte{x, y}))
		}
	}
	return points, nil
}

// parseProperty reads an identifier and its values. FF[3] lower-case letters
// in identifiers are dropped.
func (p *SGFParser) parseProperty() (string, []string, error) {
	var id strings.Builder
	start := p.index
	for p.index < len(p.content) {
		c := p.content[p.index]
		if c >= 'A' && c <= 'Z' {
			id.WriteByte(c)
		} else if c < 'a' || c > 'z' {
			break
		}
		p.index++
	}

	if id.Len() == 0 {
		return "", nil, fmt.Errorf("expected property name at position %d", start)
	}

	prop := id.String()
	values := []string{}

	for p.index < len(p.content) {
		p.skipWhitespace()
		if p.index >= len(p.content) || p.content[p.index] != '[' {
			break
		}
		p.index++

		var value strings.Builder
		escaped := false
		closed := false
		for p.index < len(p.content) {
			c := p.content[p.index]
			p.index++
			if escaped {
				value.WriteByte(c)
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == ']' {
				closed = true
				break
			}
			value.WriteByte(c)
		}
		if !closed {
			return "", nil, fmt.Errorf("unclosed value for property %s", prop)
		}
		values = append(values, value.String())
	}

	if len(values) == 0 {
		return "", nil, fmt.Errorf("property %s must have at least one value", prop)
	}

	return prop, values, nil
}

func (p *SGFParser) skipWhitespace() {
	for p.index < len(p.content) && strings.IndexByte(" \t\r\n", p.content[p.index]) >= 0 {
		p.index++
	}
}

func (p *SGFParser) skipTo(ch byte) bool {
	for p.index < len(p.content) {
		if p.content[p.index] == ch {
			return true
		}
		p.index++
	}
	return false
}
