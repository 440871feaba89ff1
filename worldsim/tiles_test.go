package worldsim

import (
	"bytes"
	"image/png"
	"testing"
)

func TestParseTileName(t *testing.T) {
	cases := []struct {
		name    string
		tile    string
		idx     int
		scale   int
		wantErr bool
	}{
		{name: "grass_0.png", tile: "grass", idx: 0, scale: 1},
		{name: "grass_2@1x.png", tile: "grass", idx: 2, scale: 1},
		{name: "forest_snow_2@2x.png", tile: "forest_snow", idx: 2, scale: 2},
		{name: "grass_0.avif", wantErr: true},
		{name: "grass_0@2x.webp", wantErr: true},
		{name: "grass_3.png", wantErr: true},
		{name: "lava.png", wantErr: true},
		{name: "castle_0.png", wantErr: true},
	}
	for _, tc := range cases {
		tile, idx, scale, err := ParseTileName(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: no error", tc.name)
			}
			continue
		}
		if err != nil || tile != tc.tile || idx != tc.idx || scale != tc.scale {
			t.Errorf("%s: got %q,%d,%d,%v", tc.name, tile, idx, scale, err)
		}
	}
}

func TestRenderTileSize(t *testing.T) {
	for _, scale := range []int{1, 2} {
		data, err := RenderTile("rock_snow", 1, scale)
		if err != nil {
			t.Fatal(err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if b := img.Bounds(); b.Dx() != 32*scale || b.Dy() != 32*scale {
			t.Fatalf("scale %d: bounds %v", scale, b)
		}
	}
}

func TestTileVersionsBump(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	before := w.TileVersions()
	v, ok := before["grass_0@2x.png"]
	if !ok {
		t.Fatal("grass_0@2x.png not listed")
	}
	if _, ok := before["grass_0.webp"]; ok {
		t.Fatal("webp listed but never served")
	}
	w.BumpTileVersion()
	if after := w.TileVersions()["grass_0@2x.png"]; after != v+1 {
		t.Fatalf("version after bump = %d, want %d", after, v+1)
	}
}
