package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pkworld/movement"
)

// Snapshot is the answer of the state endpoint.
type Snapshot struct {
	Reply
	Pos      movement.Cell        `json:"pos"`
	Tile     string               `json:"tile"`
	Weather  *Weather             `json:"weather,omitempty"`
	Climate  Text                 `json:"climate,omitempty"`
	Fatigue  float64              `json:"fatigue"`
	Patch    *Patch               `json:"patch,omitempty"`
	Anim     *movement.ServerAnim `json:"anim,omitempty"`
	Camp     Camp                 `json:"camp"`
	PathLeft int                  `json:"path_left"`
	Resting  bool                 `json:"resting"`
	Screen   *Screen              `json:"screen,omitempty"`
	Now      float64              `json:"now"`
	Monsters []Monster            `json:"monsters,omitempty"`
	Combat   *CombatState         `json:"combat,omitempty"`
}

// Camp describes a camp on the hero's cell.
type Camp struct {
	Here bool `json:"here"`
	Mine bool `json:"mine,omitempty"`
	Temp bool `json:"temp,omitempty"`
}

// Screen is the visible window size in cells.
type Screen struct {
	OX int `json:"ox"`
	OY int `json:"oy"`
	W  int `json:"w"`
	H  int `json:"h"`
}

// Observation extracts what the reconciler needs.
func (s *Snapshot) Observation() movement.Observation {
	return movement.Observation{
		Pos:      s.Pos,
		Anim:     s.Anim,
		CampHere: s.Camp.Here,
		CampMine: s.Camp.Mine,
		Resting:  s.Resting,
		PathLeft: s.PathLeft,
	}
}

// ClimateKey is the climate used for gathering: the reported one, the
// weather's, or a guess from the tile.
func (s *Snapshot) ClimateKey() string {
	if c := string(s.Climate); c != "" {
		return strings.ToLower(c)
	}
	if s.Weather != nil && s.Weather.Climate != "" {
		return strings.ToLower(string(s.Weather.Climate))
	}
	return ClimateFromTile(s.Tile)
}

// ClimateFromTile guesses a climate from a tile key.
func ClimateFromTile(tile string) string {
	switch strings.TrimSuffix(tile, "_snow") {
	case "desert", "sand", "lava":
		return "arid"
	case "snow":
		return "polar"
	case "water":
		return "oceanic"
	case "rock":
		return "continental"
	default:
		return "temperate"
	}
}

// Text is a server string that may arrive localized as {"ru":..,"en":..}.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		// numbers, bools and arrays carry no text
		*t = ""
		return nil
	}
	for _, k := range []string{"en", "ru", "key", "id", "name"} {
		if raw, ok := m[k]; ok && json.Unmarshal(raw, &s) == nil {
			*t = Text(s)
			return nil
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if json.Unmarshal(m[k], &s) == nil {
			*t = Text(s)
			return nil
		}
	}
	*t = ""
	return nil
}

// Weather is the weather object of a snapshot. A bare string is accepted
// as the key.
type Weather struct {
	Key     string `json:"key,omitempty"`
	Name    Text   `json:"name,omitempty"`
	Note    Text   `json:"note,omitempty"`
	Climate Text   `json:"climate,omitempty"`
}

func (w *Weather) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*w = Weather{Key: s}
		return nil
	}
	type plain Weather
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("weather: %w", err)
	}
	*w = Weather(p)
	return nil
}

// Code is the weather key used for lookups, "clear" when unknown.
func (w *Weather) Code() string {
	if w == nil {
		return "clear"
	}
	if w.Key != "" {
		return strings.ToLower(w.Key)
	}
	if w.Name != "" {
		return strings.ToLower(string(w.Name))
	}
	return "clear"
}

// Building sits on a single cell of a patch.
type Building struct {
	Kind string `json:"kind"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// Pad is the read-ahead margin a patch asks for.
type Pad struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DefaultPad applies when the server sends none.
var DefaultPad = Pad{X: 8, Y: 5}

// Patch is a rectangular window of tiles around the hero.
type Patch struct {
	OX        int        `json:"ox"`
	OY        int        `json:"oy"`
	W         int        `json:"w"`
	H         int        `json:"h"`
	Tiles     [][]string `json:"tiles"`
	Buildings []Building `json:"buildings,omitempty"`
	Pad       *Pad       `json:"pad,omitempty"`
}

// Signature changes whenever anything drawn from the patch would.
func (p *Patch) Signature() string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%d|%d|", p.OX, p.OY, p.W, p.H)
	for _, row := range p.Tiles {
		sb.WriteString(strings.Join(row, ","))
		sb.WriteByte('|')
	}
	for _, b := range p.Buildings {
		fmt.Fprintf(&sb, "%s:%d,%d|", b.Kind, b.X, b.Y)
	}
	return sb.String()
}

// Margin returns the read-ahead padding.
func (p *Patch) Margin() Pad {
	if p == nil || p.Pad == nil {
		return DefaultPad
	}
	return *p.Pad
}

// NearEdge reports whether c is within the padding of the patch border.
func (p *Patch) NearEdge(c movement.Cell) bool {
	if p == nil {
		return false
	}
	pad := p.Margin()
	return c.X <= p.OX+pad.X ||
		c.X >= p.OX+p.W-1-pad.X ||
		c.Y <= p.OY+pad.Y ||
		c.Y >= p.OY+p.H-1-pad.Y
}

// TileAt returns the tile key at a world cell.
func (p *Patch) TileAt(c movement.Cell) (string, bool) {
	if p == nil {
		return "", false
	}
	i, j := c.X-p.OX, c.Y-p.OY
	if j < 0 || j >= len(p.Tiles) || i < 0 || i >= len(p.Tiles[j]) {
		return "", false
	}
	return p.Tiles[j][i], true
}

// BuildingAt returns the building on c, if any.
func (p *Patch) BuildingAt(c movement.Cell) (Building, bool) {
	if p == nil {
		return Building{}, false
	}
	for _, b := range p.Buildings {
		if b.X == c.X && b.Y == c.Y {
			return b, true
		}
	}
	return Building{}, false
}
