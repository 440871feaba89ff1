package worldsim

import (
	"pkworld/movement"
)

// PlayerID is the client session id a player is keyed by.
type PlayerID string

// Player is the authoritative state of one hero.
type Player struct {
	ID   PlayerID
	Pos  movement.Cell
	Dest *movement.Cell
	// Path holds the cells still to walk, next step first.
	Path []movement.Cell
	// LastUpdate is the server time up to which the player was advanced;
	// while walking it is the start of the step in progress.
	LastUpdate float64
	Fatigue    float64
	Resting    bool

	Gathering  bool
	GatherMode string

	Inv Inventory

	// LastSeen is the wall time of the last request, for reaping.
	LastSeen float64
}

// Camp is the camp part of a snapshot.
type Camp struct {
	Here bool `json:"here"`
	Mine bool `json:"mine,omitempty"`
	Temp bool `json:"temp,omitempty"`
}

// Building sits on a cell. Owner is empty for world buildings.
type Building struct {
	Kind  string   `json:"kind"`
	X     int      `json:"x"`
	Y     int      `json:"y"`
	Owner PlayerID `json:"owner_id,omitempty"`
	Temp  bool     `json:"-"`
}

// Cell returns where the building stands.
func (b Building) Cell() movement.Cell { return movement.Cell{X: b.X, Y: b.Y} }
