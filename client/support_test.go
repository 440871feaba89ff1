package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkworld/movement"
)

func TestNotifierRing(t *testing.T) {
	m := &Metrics{}
	n := NewNotifier(3, false, newFakeClock(), m)
	var seen []string
	n.OnToast(func(t Toast) { seen = append(seen, t.Text) })

	if _, ok := n.Last(); ok {
		t.Fatal("empty notifier has a last toast")
	}
	for i := 1; i <= 5; i++ {
		n.Toast("note %d", i)
	}
	n.Warn("%s", "100% done")

	got := n.Recent()
	want := []string{"note 4", "note 5", "100% done"}
	if len(got) != len(want) {
		t.Fatalf("recent = %v", got)
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, got[i].Text, want[i])
		}
	}
	if got[2].Level != LevelWarn {
		t.Fatalf("level = %s", got[2].Level)
	}
	if len(seen) != 6 || m.Toasts != 6 {
		t.Fatalf("hooks=%d metric=%d", len(seen), m.Toasts)
	}
}

func TestNotifierDiag(t *testing.T) {
	n := NewNotifier(0, false, nil, nil)
	if _, shown := n.Diag(); shown {
		t.Fatal("diag shown at start")
	}
	n.ShowDiag("could not fetch state: http=%d", 503)
	if d, shown := n.Diag(); !shown || d != "could not fetch state: http=503" {
		t.Fatalf("diag = %q", d)
	}
	n.HideDiag()
	if _, shown := n.Diag(); shown {
		t.Fatal("diag kept")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.json")
	body := `{
		"server": "http://game.local:5000",
		"endpoints": {"state": "/v2/state", "stateGet": "/v2/state"},
		"cadence_ms": {"moving": 500},
		"tile_versions": {"grass_0.png": 9},
		"movement": {"snap_distance": 4, "arrival_lock": 0.4}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server != "http://game.local:5000" || cfg.Endpoints.State != "/v2/state" || cfg.Endpoints.StateGet != "/v2/state" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Endpoints.SetDest != "/world/set_dest" {
		t.Fatal("unset endpoint lost its default")
	}
	cad := cfg.Cadence()
	if cad[movement.Moving] != 500*time.Millisecond || cad[movement.Idle] != 1200*time.Millisecond {
		t.Fatalf("cadence = %v", cad)
	}
	if cfg.TileVersions["grass_0.png"] != 9 {
		t.Fatal("tile versions not loaded")
	}

	t.Setenv("PK_SERVER", "http://override:1")
	cfg, err = LoadConfig(path)
	if err != nil || cfg.Server != "http://override:1" {
		t.Fatalf("env override = %q, %v", cfg.Server, err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file accepted")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte("{"), 0o600)
	if _, err := LoadConfig(bad); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("bad json err = %v", err)
	}
}

func TestTextUnmarshal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"Clear sky"`, "Clear sky"},
		{`{"ru":"Ясно","en":"Clear"}`, "Clear"},
		{`{"ru":"Ясно"}`, "Ясно"},
		{`{"zz":"last","aa":"first"}`, "first"},
		{`{"en":5}`, ""},
		{`42`, ""},
		{`null`, ""},
	}
	for _, tt := range tests {
		var got Text
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Errorf("%s -> %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWeatherForms(t *testing.T) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(`{"ok":true,"tile":"sand","weather":"Storm"}`), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Weather.Code() != "storm" || snap.ClimateKey() != "arid" {
		t.Fatalf("weather=%s climate=%s", snap.Weather.Code(), snap.ClimateKey())
	}

	snap = Snapshot{}
	if err := json.Unmarshal([]byte(`{"ok":true,"tile":"grass","climate":{"en":"Oceanic"},"weather":{"name":{"en":"Fog"},"climate":"polar"}}`), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Weather.Code() != "fog" || snap.ClimateKey() != "oceanic" {
		t.Fatalf("weather=%s climate=%s", snap.Weather.Code(), snap.ClimateKey())
	}

	var none *Weather
	if none.Code() != "clear" {
		t.Fatal("nil weather is not clear")
	}
}

func TestPatchGeometry(t *testing.T) {
	p := &Patch{OX: -15, OY: -9, W: 31, H: 19}
	tests := []struct {
		c    movement.Cell
		near bool
	}{
		{movement.Cell{X: 0, Y: 0}, false},
		{movement.Cell{X: -7, Y: 0}, true},
		{movement.Cell{X: -6, Y: 0}, false},
		{movement.Cell{X: 7, Y: 0}, true},
		{movement.Cell{X: 0, Y: -4}, true},
		{movement.Cell{X: 0, Y: 4}, true},
		{movement.Cell{X: 0, Y: 3}, false},
	}
	for _, tt := range tests {
		if got := p.NearEdge(tt.c); got != tt.near {
			t.Errorf("NearEdge(%v) = %v, want %v", tt.c, got, tt.near)
		}
	}

	a := &Patch{OX: 0, OY: 0, W: 2, H: 1, Tiles: [][]string{{"grass", "road"}}}
	b := &Patch{OX: 0, OY: 0, W: 2, H: 1, Tiles: [][]string{{"grass", "road"}}, Buildings: []Building{{Kind: "camp", X: 1, Y: 0}}}
	if a.Signature() == b.Signature() {
		t.Fatal("a new building did not change the signature")
	}
	if tile, ok := a.TileAt(movement.Cell{X: 1, Y: 0}); !ok || tile != "road" {
		t.Fatalf("TileAt = %q %v", tile, ok)
	}
	if _, ok := a.TileAt(movement.Cell{X: 2, Y: 0}); ok {
		t.Fatal("TileAt outside the patch")
	}
	if bld, ok := b.BuildingAt(movement.Cell{X: 1, Y: 0}); !ok || bld.Kind != "camp" {
		t.Fatal("BuildingAt")
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Errorf("FormatCount = %q", got)
	}
	if got := FormatRemaining(125 * time.Second); got != "2 minutes 5 seconds" {
		t.Errorf("FormatRemaining = %q", got)
	}
	if FormatRemaining(0) != "done" {
		t.Error("zero remaining")
	}
	if got := FormatKg(12.5); !strings.HasPrefix(got, "12.5") || !strings.HasSuffix(got, " kg") {
		t.Errorf("FormatKg = %q", got)
	}
	if Pretty("iron_ore") != "Iron Ore" || Pretty("") != "-" {
		t.Error("Pretty")
	}
	if Plural(1, "piece", "pieces") != "piece" || Plural(0, "piece", "pieces") != "pieces" {
		t.Error("Plural")
	}

	tests := []struct{ tile, weather, note, want string }{
		{"forest_snow", "storm", "", "Effects: slippery, speed down"},
		{"road", "clear", " muddy ", "Effects: faster, fair weather, muddy"},
		{"", "", "", "Effects: -"},
	}
	for _, tt := range tests {
		if got := Effects(tt.tile, tt.weather, tt.note); got != tt.want {
			t.Errorf("Effects(%q, %q) = %q, want %q", tt.tile, tt.weather, got, tt.want)
		}
	}
}
