package client

import (
	"reflect"
	"testing"
)

func TestCandidatesOrder(t *testing.T) {
	std := NewTileSet(nil, false).Candidates("grass", 1)
	want := []string{
		"grass_1@1x.avif", "grass_1@2x.avif", "grass_1.avif",
		"grass_1@1x.webp", "grass_1@2x.webp", "grass_1.webp",
		"grass_1@1x.png", "grass_1@2x.png", "grass_1.png",
	}
	if !reflect.DeepEqual(std, want) {
		t.Fatalf("standard = %v", std)
	}
	hi := NewTileSet(nil, true).Candidates("grass", 1)
	if hi[0] != "grass_1@2x.avif" || hi[1] != "grass_1@1x.avif" {
		t.Fatalf("hidpi = %v", hi[:3])
	}

	chain := NewTileSet(nil, false).Chain("forest_snow", 0)
	if len(chain) != 18 || chain[9] != "snow_0@1x.avif" {
		t.Fatalf("snow chain = %v", chain)
	}
}

func TestChooseName(t *testing.T) {
	set := NewTileSet(map[string]int64{"grass_0.png": 4}, false)
	if got := set.ChooseName("grass", 0); got != "grass_0.png" {
		t.Fatalf("versioned pick = %s", got)
	}
	if got := set.Path("grass_0.png"); got != "/static/tiles/grass_0.png?v=4" {
		t.Fatalf("path = %s", got)
	}
	if got := set.Path("meadow_0.png"); got != "/static/tiles/meadow_0.png?v=0" {
		t.Fatalf("unknown version path = %s", got)
	}

	set.MarkBad("meadow_0@1x.avif")
	if got := set.ChooseName("meadow", 0); got != "meadow_0@2x.avif" {
		t.Fatalf("skip bad = %s", got)
	}

	snow := NewTileSet(map[string]int64{"snow_1@1x.png": 1}, false)
	if got := snow.ChooseName("rock_snow", 1); got != "snow_1@1x.png" {
		t.Fatalf("snow fallback = %s", got)
	}
}

func TestMergeBumpsGeneration(t *testing.T) {
	set := NewTileSet(map[string]int64{"grass_0.png": 1}, false)
	if set.Merge(map[string]int64{"grass_0.png": 1}) {
		t.Fatal("unchanged table reported a change")
	}
	if set.Gen() != 0 {
		t.Fatalf("gen = %d", set.Gen())
	}
	if !set.Merge(map[string]int64{"grass_0.png": 2, "grass_1.png": 1}) {
		t.Fatal("change not reported")
	}
	if set.Gen() != 1 || set.Version("grass_0.png") != 2 {
		t.Fatalf("gen=%d version=%d", set.Gen(), set.Version("grass_0.png"))
	}
}

func TestVariantIndex(t *testing.T) {
	for x := -20; x <= 20; x++ {
		for y := -20; y <= 20; y++ {
			if i := VariantIndex("grass", x, y); i < 0 || i >= 3 {
				t.Fatalf("grass variant %d at %d,%d", i, x, y)
			}
			if VariantIndex("road", x, y) != 0 {
				t.Fatal("single-variant tile picked a variant")
			}
		}
	}
	if VariantIndex("forest", 5, 7) != VariantIndex("forest", 5, 7) {
		t.Fatal("variant is not stable")
	}
	if VariantCount("forest_snow") != 3 || VariantCount("mystery_snow") != 2 || VariantCount("mystery") != 1 {
		t.Fatal("variant count fallbacks")
	}
}

func TestPrettyTileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "-"},
		{"rock", "rocks"},
		{"forest_snow", "forest (snow)"},
		{"crystal_cave", "Crystal Cave"},
	}
	for _, tt := range tests {
		if got := PrettyTileName(tt.in); got != tt.want {
			t.Errorf("PrettyTileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueTiles(t *testing.T) {
	p := &Patch{
		OX: 0, OY: 0, W: 2, H: 1,
		Tiles:     [][]string{{"town", "road"}},
		Buildings: []Building{{Kind: "town", X: 0, Y: 0}},
	}
	got := UniqueTiles(p)
	want := []TileRef{{Tile: "grass", Idx: VariantIndex("grass", 0, 0)}, {Tile: "road", Idx: 0}, {Tile: "town", Idx: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UniqueTiles = %v", got)
	}
	if len(AllTiles()) == 0 || UniqueTiles(nil) != nil {
		t.Fatal("edge cases")
	}
}
