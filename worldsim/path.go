package worldsim

import (
	"strings"

	"pkworld/movement"
)

// PathPad widens the search rectangle around start and goal.
const PathPad = 12

var stepDirs = []movement.Direction{movement.DirRight, movement.DirLeft, movement.DirDown, movement.DirUp}

// FindPath returns the cells from start (exclusive) to goal (inclusive)
// along passable cells, searching breadth first inside the bounding box
// of both padded by PathPad. Nil means no path.
func FindPath(passable func(movement.Cell) bool, start, goal movement.Cell) []movement.Cell {
	if start == goal || !passable(goal) {
		return nil
	}
	x0, x1 := min(start.X, goal.X)-PathPad, max(start.X, goal.X)+PathPad
	y0, y1 := min(start.Y, goal.Y)-PathPad, max(start.Y, goal.Y)+PathPad
	inside := func(c movement.Cell) bool { return c.X >= x0 && c.X <= x1 && c.Y >= y0 && c.Y <= y1 }

	prev := map[movement.Cell]movement.Cell{start: start}
	queue := []movement.Cell{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			break
		}
		for _, d := range stepDirs {
			n := cur.Add(d)
			if _, seen := prev[n]; seen || !inside(n) || !passable(n) {
				continue
			}
			prev[n] = cur
			queue = append(queue, n)
		}
	}
	if _, ok := prev[goal]; !ok {
		return nil
	}
	var rev []movement.Cell
	for c := goal; c != start; c = prev[c] {
		rev = append(rev, c)
	}
	out := make([]movement.Cell, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}

// EncodeDirs writes a path as one U/D/L/R letter per step. Non-adjacent
// jumps are skipped.
func EncodeDirs(start movement.Cell, path []movement.Cell) string {
	var sb strings.Builder
	p := start
	for _, c := range path {
		for _, d := range stepDirs {
			if p.Add(d) == c {
				sb.WriteByte(d.Byte())
				break
			}
		}
		p = c
	}
	return sb.String()
}
