package movement

import (
	"fmt"
	"math"
)

// Cell is an integer grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Edge is the key of a single step from c to to.
func (c Cell) Edge(to Cell) string {
	return fmt.Sprintf("%d,%d->%d,%d", c.X, c.Y, to.X, to.Y)
}

// Add returns c shifted by d.
func (c Cell) Add(d Direction) Cell {
	dx, dy := d.Delta()
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

// Position is the displayed, possibly interpolated, player position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// At converts a grid cell to a position.
func At(c Cell) Position { return Position{X: float64(c.X), Y: float64(c.Y)} }

// Lerp interpolates between two cells.
func Lerp(from, to Cell, p float64) Position {
	return Position{
		X: float64(from.X) + float64(to.X-from.X)*p,
		Y: float64(from.Y) + float64(to.Y-from.Y)*p,
	}
}

// Manhattan distance between a displayed position and a cell.
func (p Position) Manhattan(c Cell) float64 {
	return math.Abs(p.X-float64(c.X)) + math.Abs(p.Y-float64(c.Y))
}

// Round snaps the position to the nearest cell.
func (p Position) Round() Cell {
	return Cell{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// Direction of a single step; the server encodes it as R/L/D/U.
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// ParseDirection maps a plan character to a direction.
func ParseDirection(ch byte) Direction {
	switch ch {
	case 'U':
		return DirUp
	case 'D':
		return DirDown
	case 'L':
		return DirLeft
	case 'R':
		return DirRight
	default:
		return DirNone
	}
}

// Delta returns the grid offset of one step.
func (d Direction) Delta() (int, int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	default:
		return 0, 0
	}
}

// Byte is the inverse of ParseDirection.
func (d Direction) Byte() byte {
	switch d {
	case DirUp:
		return 'U'
	case DirDown:
		return 'D'
	case DirLeft:
		return 'L'
	case DirRight:
		return 'R'
	default:
		return '.'
	}
}

// PlanMsg is the plan object returned by set_dest.
type PlanMsg struct {
	Start  Cell    `json:"start"`
	Dirs   string  `json:"dirs"`
	StepT  float64 `json:"step_t"`
	Now    float64 `json:"now"`
	StopAt *int    `json:"stop_at,omitempty"`
}

// ServerAnim is the in-flight step reported by a state snapshot.
type ServerAnim struct {
	Moving bool     `json:"moving"`
	Frm    Cell     `json:"frm"`
	To     Cell     `json:"to"`
	T      float64  `json:"t"`
	TS     *float64 `json:"ts,omitempty"`
	P0     float64  `json:"p0"`
	Edge   string   `json:"edge,omitempty"`
}

// StepPlan is the locally executed copy of a server plan.
type StepPlan struct {
	Active bool
	Start  Cell
	Cur    Cell
	Dirs   string
	Idx    int
	StepT  float64
	TS     float64
	StopAt int // -1 when the plan runs to the end
}

func (p *StepPlan) done() bool {
	if p.Idx >= len(p.Dirs) {
		return true
	}
	return p.StopAt >= 0 && p.Idx >= p.StopAt
}

// Anim is the single step currently being interpolated.
type Anim struct {
	From     Cell
	To       Cell
	Duration float64
	Start    float64
	Edge     string

	// shown is the highest progress already displayed for this edge.
	shown float64
}

func (a *Anim) progress(now float64) float64 {
	return (now - a.Start) / math.Max(minStepT, a.Duration)
}

// Observation is the movement-relevant part of a state snapshot.
type Observation struct {
	Pos      Cell
	Anim     *ServerAnim
	CampHere bool
	CampMine bool
	Resting  bool
	PathLeft int
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
