package worldsim

import (
	"github.com/ojrac/opensimplex-go"

	"pkworld/movement"
)

// Tile keys the client knows how to draw.
const (
	TileGrass  = "grass"
	TileMeadow = "meadow"
	TileForest = "forest"
	TileSwamp  = "swamp"
	TileSand   = "sand"
	TileDesert = "desert"
	TileWater  = "water"
	TileRock   = "rock"
	TileSnow   = "snow"
	TileLava   = "lava"
	TileRoad   = "road"
)

// ChunkSize groups cells for weather.
const ChunkSize = 16

// Terrain is an endless deterministic map built from three noise fields.
type Terrain struct {
	elev  *opensimplex.Noise
	moist *opensimplex.Noise
	temp  *opensimplex.Noise
	// cells within this radius of the origin are plain grass
	safe int
}

// NewTerrain builds the map for a seed.
func NewTerrain(seed int64) *Terrain {
	return &Terrain{
		elev:  opensimplex.NewWithSeed(seed),
		moist: opensimplex.NewWithSeed(seed + 1),
		temp:  opensimplex.NewWithSeed(seed + 2),
		safe:  3,
	}
}

func (t *Terrain) sample(n *opensimplex.Noise, x, y int, scale float64) float64 {
	return n.Eval2(float64(x)/scale, float64(y)/scale)
}

// Temperature is -1 (polar) to 1 (arid).
func (t *Terrain) Temperature(x, y int) float64 { return t.sample(t.temp, x, y, 64) }

// TileAt returns the ground tile of a cell, without buildings.
func (t *Terrain) TileAt(x, y int) string {
	if abs(x) <= t.safe && abs(y) <= t.safe {
		if x == 0 || y == 0 {
			return TileRoad
		}
		return TileGrass
	}
	e := t.sample(t.elev, x, y, 24)
	m := t.sample(t.moist, x, y, 18)
	temp := t.Temperature(x, y)

	var base string
	switch {
	case e < -0.45:
		return TileWater
	case e > 0.8 && temp > 0.2:
		return TileLava
	case e > 0.55:
		base = TileRock
	case x == 0 || y == 0:
		base = TileRoad
	case m > 0.45:
		base = TileSwamp
	case m > 0.15:
		base = TileForest
	case m > -0.15:
		base = TileGrass
	case m > -0.4:
		base = TileMeadow
	case m > -0.6:
		base = TileSand
	default:
		base = TileDesert
	}
	switch {
	case temp < -0.7:
		return TileSnow
	case temp < -0.45:
		return base + "_snow"
	}
	return base
}

// Climate names the climate of a chunk.
func (t *Terrain) Climate(c movement.Cell) string {
	cx, cy := chunkOf(c)
	temp := t.Temperature(cx*ChunkSize+ChunkSize/2, cy*ChunkSize+ChunkSize/2)
	switch {
	case temp < -0.45:
		return "polar"
	case temp < -0.15:
		return "continental"
	case temp > 0.45:
		return "arid"
	default:
		return "temperate"
	}
}

// Passable reports whether a hero may step on tile.
func Passable(tile string) bool {
	return tile != TileWater && tile != TileLava
}

func chunkOf(c movement.Cell) (int, int) {
	return floorDiv(c.X, ChunkSize), floorDiv(c.Y, ChunkSize)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
