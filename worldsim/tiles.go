package worldsim

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
)

// tileVariants is how many image variants the simulator serves per tile.
var tileVariants = map[string]int{
	"grass": 3, "meadow": 2, "forest": 3, "swamp": 2, "sand": 2, "desert": 2,
	"water": 2, "rock": 2, "snow": 2, "lava": 1, "road": 1, "town": 1,
	"tavern": 1, "camp": 1, "hero": 1,
	"grass_snow": 3, "meadow_snow": 2, "forest_snow": 3, "swamp_snow": 2,
	"sand_snow": 2, "desert_snow": 2, "rock_snow": 2, "road_snow": 1,
}

var tileColors = map[string]color.RGBA{
	"grass": {86, 160, 72, 255}, "meadow": {140, 190, 90, 255}, "forest": {34, 100, 40, 255},
	"swamp": {70, 110, 90, 255}, "sand": {220, 200, 130, 255}, "desert": {230, 180, 100, 255},
	"water": {50, 100, 200, 255}, "rock": {120, 120, 120, 255}, "snow": {240, 240, 250, 255},
	"lava": {200, 60, 20, 255}, "road": {160, 130, 90, 255}, "town": {150, 80, 160, 255},
	"tavern": {170, 100, 60, 255}, "camp": {200, 60, 60, 255}, "hero": {250, 220, 40, 255},
}

var tileScales = []string{"", "@1x", "@2x"}

// TileVersions lists every served file with its version.
func (w *World) TileVersions() map[string]int64 {
	w.mu.Lock()
	ver := w.tileVer
	w.mu.Unlock()
	out := make(map[string]int64, len(tileVariants)*4)
	for tile, n := range tileVariants {
		for i := 0; i < n; i++ {
			for _, sc := range tileScales {
				out[fmt.Sprintf("%s_%d%s.png", tile, i, sc)] = ver
			}
		}
	}
	return out
}

// BumpTileVersion invalidates every tile image, as a redeploy of the
// art would.
func (w *World) BumpTileVersion() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tileVer++
	return w.tileVer
}

// ParseTileName splits "forest_snow_2@2x.png" into its tile key, variant
// and pixel scale. Only PNG files are served.
func ParseTileName(name string) (tile string, idx, scale int, err error) {
	base, ok := strings.CutSuffix(name, ".png")
	if !ok {
		return "", 0, 0, fmt.Errorf("unsupported tile format %q", name)
	}
	scale = 1
	if b, ok := strings.CutSuffix(base, "@2x"); ok {
		base, scale = b, 2
	} else {
		base = strings.TrimSuffix(base, "@1x")
	}
	cut := strings.LastIndexByte(base, '_')
	if cut < 0 {
		return "", 0, 0, fmt.Errorf("bad tile name %q", name)
	}
	tile = base[:cut]
	idx, err = strconv.Atoi(base[cut+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("bad tile variant %q", name)
	}
	if n, ok := tileVariants[tile]; !ok || idx < 0 || idx >= n {
		return "", 0, 0, fmt.Errorf("unknown tile %q", name)
	}
	return tile, idx, scale, nil
}

// RenderTile draws a flat placeholder image for a tile variant.
func RenderTile(tile string, idx, scale int) ([]byte, error) {
	base := strings.TrimSuffix(tile, "_snow")
	c, ok := tileColors[base]
	if !ok {
		c = color.RGBA{255, 0, 255, 255}
	}
	if base != tile {
		c = blend(c, tileColors["snow"])
	}
	// variants differ slightly in shade
	shade := uint8(idx * 12)
	c.R, c.G, c.B = sub(c.R, shade), sub(c.G, shade), sub(c.B, shade)

	size := 32 * scale
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blend(a, b color.RGBA) color.RGBA {
	return color.RGBA{uint8((int(a.R) + int(b.R)) / 2), uint8((int(a.G) + int(b.G)) / 2), uint8((int(a.B) + int(b.B)) / 2), 255}
}

func sub(v, d uint8) uint8 {
	if v < d {
		return 0
	}
	return v - d
}
