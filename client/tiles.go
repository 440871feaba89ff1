package client

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TilePathPrefix is where tile images are served from.
const TilePathPrefix = "/static/tiles/"

// variantCounts is how many image variants exist per tile key.
var variantCounts = map[string]int{
	"grass": 3, "meadow": 2, "forest": 3, "swamp": 2, "sand": 2, "desert": 2,
	"water": 2, "rock": 2, "snow": 2, "lava": 1, "road": 1, "town": 1,
	"tavern": 1, "camp": 1, "hero": 1,
	"grass_snow": 3, "meadow_snow": 2, "forest_snow": 3, "swamp_snow": 2,
	"sand_snow": 2, "desert_snow": 2, "rock_snow": 2, "road_snow": 1,
}

// Buildings drawn on top of the map; the ground under them is grass.
var nonBiome = map[string]bool{"camp": true, "town": true, "tavern": true}

var tileNames = map[string]string{
	"grass": "grass", "meadow": "meadow", "forest": "forest", "swamp": "swamp",
	"sand": "sand", "desert": "desert", "water": "water", "rock": "rocks",
	"snow": "snow", "lava": "lava", "road": "road", "town": "town",
	"tavern": "tavern", "camp": "camp",
}

var (
	extOrder      = []string{"avif", "webp", "png"}
	scaleHiDPI    = []string{"@2x", "@1x", ""}
	scaleStandard = []string{"@1x", "@2x", ""}
)

// TileHash spreads cell coordinates for variant selection.
func TileHash(x, y int) uint32 {
	return uint32(int64(x)*73856093) ^ uint32(int64(y)*19349663)
}

// VariantCount returns the number of variants of a tile. Snow tiles fall
// back to their base, then to plain snow.
func VariantCount(tile string) int {
	if n, ok := variantCounts[tile]; ok {
		return n
	}
	if base, ok := strings.CutSuffix(tile, "_snow"); ok {
		if n, ok := variantCounts[base]; ok {
			return n
		}
		if n, ok := variantCounts["snow"]; ok {
			return n
		}
	}
	return 1
}

// GroundTile maps building tiles to the grass they stand on.
func GroundTile(tile string) string {
	if nonBiome[tile] {
		return "grass"
	}
	return tile
}

// VariantIndex picks the variant drawn at x,y.
func VariantIndex(tile string, x, y int) int {
	n := VariantCount(tile)
	if n <= 1 {
		return 0
	}
	return int(TileHash(x, y) % uint32(n))
}

// PrettyTileName is the human name of a tile key.
func PrettyTileName(key string) string {
	if key == "" {
		return "-"
	}
	if base, ok := strings.CutSuffix(key, "_snow"); ok {
		return PrettyTileName(base) + " (snow)"
	}
	if n, ok := tileNames[key]; ok {
		return n
	}
	return Pretty(key)
}

// TileRef is one tile image a patch needs.
type TileRef struct {
	Tile string
	Idx  int
}

func (r TileRef) key() string { return fmt.Sprintf("%s:%d", r.Tile, r.Idx) }

// UniqueTiles lists the tile images a patch draws, in first-seen order.
func UniqueTiles(p *Patch) []TileRef {
	if p == nil {
		return nil
	}
	seen := map[TileRef]bool{}
	var out []TileRef
	add := func(r TileRef) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for j, row := range p.Tiles {
		for i, t := range row {
			t = GroundTile(t)
			add(TileRef{Tile: t, Idx: VariantIndex(t, p.OX+i, p.OY+j)})
		}
	}
	for _, b := range p.Buildings {
		add(TileRef{Tile: b.Kind, Idx: 0})
	}
	return out
}

// AllTiles lists every known tile variant, for idle prefetch.
func AllTiles() []TileRef {
	keys := make([]string, 0, len(variantCounts))
	for k := range variantCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []TileRef
	for _, k := range keys {
		for i := 0; i < variantCounts[k]; i++ {
			out = append(out, TileRef{Tile: k, Idx: i})
		}
	}
	return out
}

// TileSet tracks the tile version table and which image file serves each
// tile variant.
type TileSet struct {
	mu       sync.RWMutex
	vers     map[string]int64
	gen      int
	hidpi    bool
	resolved map[string]string
	bad      map[string]bool
}

// NewTileSet starts from the boot version table.
func NewTileSet(initial map[string]int64, hidpi bool) *TileSet {
	t := &TileSet{
		vers:     map[string]int64{},
		hidpi:    hidpi,
		resolved: map[string]string{},
		bad:      map[string]bool{},
	}
	for k, v := range initial {
		t.vers[k] = v
	}
	return t
}

// Merge folds in a version table and bumps the generation on change.
func (t *TileSet) Merge(versions map[string]int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := false
	for name, v := range versions {
		if cur, ok := t.vers[name]; !ok || cur != v {
			t.vers[name] = v
			changed = true
		}
	}
	if changed {
		t.gen++
	}
	return changed
}

// Gen counts version table changes.
func (t *TileSet) Gen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen
}

// Version of a file, 0 if unknown.
func (t *TileSet) Version(name string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vers[name]
}

// Candidates lists file names for a variant in preference order.
func (t *TileSet) Candidates(tile string, idx int) []string {
	scales := scaleStandard
	if t.hidpi {
		scales = scaleHiDPI
	}
	out := make([]string, 0, len(extOrder)*len(scales))
	for _, ext := range extOrder {
		for _, sc := range scales {
			out = append(out, fmt.Sprintf("%s_%d%s.%s", tile, idx, sc, ext))
		}
	}
	return out
}

// Chain is Candidates followed by the plain snow fallback for snow tiles.
func (t *TileSet) Chain(tile string, idx int) []string {
	out := t.Candidates(tile, idx)
	if strings.HasSuffix(tile, "_snow") {
		out = append(out, t.Candidates("snow", idx)...)
	}
	return out
}

// ChooseName picks the file to request for a variant: a resolved one,
// else the first known-versioned candidate, else the first not marked bad.
func (t *TileSet) ChooseName(tile string, idx int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.resolved[TileRef{tile, idx}.key()]; ok {
		return name
	}
	list := t.Candidates(tile, idx)
	groups := [][]string{list}
	if strings.HasSuffix(tile, "_snow") {
		groups = append(groups, t.Candidates("snow", idx))
	}
	for _, g := range groups {
		for _, n := range g {
			if t.bad[n] {
				continue
			}
			if _, ok := t.vers[n]; ok {
				return n
			}
		}
	}
	for _, n := range list {
		if !t.bad[n] {
			return n
		}
	}
	return list[len(list)-1]
}

// Resolved returns the file that loaded for a variant.
func (t *TileSet) Resolved(tile string, idx int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.resolved[TileRef{tile, idx}.key()]
	return n, ok
}

// Resolve records that name loaded for a variant.
func (t *TileSet) Resolve(tile string, idx int, name string) {
	t.mu.Lock()
	t.resolved[TileRef{tile, idx}.key()] = name
	t.mu.Unlock()
}

// MarkBad excludes a file name that failed to load.
func (t *TileSet) MarkBad(name string) {
	t.mu.Lock()
	t.bad[name] = true
	t.mu.Unlock()
}

// IsBad reports whether a file failed before.
func (t *TileSet) IsBad(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bad[name]
}

// Path is the versioned server path of a tile file.
func (t *TileSet) Path(name string) string {
	return fmt.Sprintf("%s%s?v=%d", TilePathPrefix, name, t.Version(name))
}
