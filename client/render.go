package client

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ahmetb/go-cursor"
	"github.com/mgutz/ansi"

	"pkworld/movement"
)

type glyph struct {
	ch    string
	style string
}

var tileGlyphs = map[string]glyph{
	"grass":  {".", "green"},
	"meadow": {",", "green+h"},
	"forest": {"^", "green+b"},
	"swamp":  {"%", "cyan"},
	"sand":   {":", "yellow"},
	"desert": {":", "yellow+h"},
	"water":  {"~", "blue+b"},
	"rock":   {"#", "white"},
	"snow":   {"*", "white+h"},
	"lava":   {"&", "red+b"},
	"road":   {"=", "yellow+b"},
}

var buildingGlyphs = map[string]glyph{
	"town":   {"T", "magenta+b"},
	"tavern": {"t", "magenta"},
	"camp":   {"A", "red+h"},
}

// glyphFor picks the map symbol of a tile; snow variants are drawn white.
func glyphFor(tile string) glyph {
	if base, ok := strings.CutSuffix(tile, "_snow"); ok {
		g := glyphFor(base)
		g.style = "white+h"
		return g
	}
	if g, ok := buildingGlyphs[tile]; ok {
		return g
	}
	if g, ok := tileGlyphs[tile]; ok {
		return g
	}
	return glyph{"?", "default"}
}

// Renderer draws views to an ANSI terminal, at most fps times a second.
type Renderer struct {
	w      io.Writer
	clock  Clock
	gap    time.Duration
	width  int
	height int

	mu        sync.Mutex
	last      time.Time
	refreshed bool
	toast     string
	count     uint64
}

// NewRenderer draws a width x height cell window around the hero.
func NewRenderer(w io.Writer, fps, width, height int, clock Clock) *Renderer {
	if fps <= 0 {
		fps = 10
	}
	if width <= 0 {
		width = 15
	}
	if height <= 0 {
		height = 9
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Renderer{w: w, clock: clock, gap: time.Second / time.Duration(fps), width: width, height: height}
}

// OnToast keeps the newest toast for the status line.
func (r *Renderer) OnToast(t Toast) {
	r.mu.Lock()
	r.toast = t.Text
	r.mu.Unlock()
}

// Handle is a Session subscriber. Views arriving faster than the frame
// budget are dropped.
func (r *Renderer) Handle(v View) {
	r.mu.Lock()
	now := r.clock.Now()
	if now.Sub(r.last) < r.gap {
		r.mu.Unlock()
		return
	}
	r.last = now
	first := !r.refreshed
	r.refreshed = true
	r.count++
	toast := r.toast
	r.mu.Unlock()

	var sb strings.Builder
	if first {
		sb.WriteString(cursor.ClearEntireScreen())
	}
	sb.WriteString(cursor.MoveTo(1, 1))
	sb.WriteString(r.Render(v, toast))
	if _, err := io.WriteString(r.w, sb.String()); err != nil {
		Log.Debugf("render: %v", err)
	}
}

// Frames counts the views actually drawn.
func (r *Renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Render returns the screen for a view, without cursor movement.
func (r *Renderer) Render(v View, toast string) string {
	var sb strings.Builder
	reset := ansi.ColorCode("reset")
	hero := v.Frame.Pos.Round()
	ox := hero.X - r.width/2
	oy := hero.Y - r.height/2

	for j := 0; j < r.height; j++ {
		for i := 0; i < r.width; i++ {
			c := movement.Cell{X: ox + i, Y: oy + j}
			if c == hero && !v.Frame.HideHero {
				sb.WriteString(ansi.Color("@", "yellow+b"))
				continue
			}
			sb.WriteString(r.cell(v.Patch, c))
		}
		sb.WriteString(reset + "\n")
	}

	header := ansi.ColorCode("blue+b")
	fmt.Fprintf(&sb, "%s%s%s  pos %.1f,%.1f  server %d,%d\n", header, strings.ToUpper(v.Frame.Indicator.String()), reset,
		v.Frame.Pos.X, v.Frame.Pos.Y, v.Server.X, v.Server.Y)
	if v.Frame.HasProgress {
		fmt.Fprintf(&sb, "step %s %3d%%\n", bar(v.Frame.Progress, 20), int(math.Round(v.Frame.Progress*100)))
	} else {
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%s | %s | %s | fatigue %s %.0f\n", v.TileName, Pretty(v.Weather), Pretty(v.Climate),
		bar(math.Min(1, v.Fatigue/100), 10), v.Fatigue)
	fmt.Fprintf(&sb, "%s\n", v.Effects)
	camp := "no camp"
	if v.Camp.Here {
		camp = "camp here"
		if v.Camp.Mine {
			camp = "camped"
		}
	}
	fmt.Fprintf(&sb, "%s | gather %s | poll %s | %s\n", camp, v.Gather, v.Activity, v.Craft)
	fmt.Fprintf(&sb, "%s | %s\n", MonsterSummary(v.Monsters), StatusLabel(v.Combat))
	if v.Combat.Visible() {
		fmt.Fprintf(&sb, "you %.0f/%.0f  %s %.0f/%.0f\n", v.Combat.Player.HP, v.Combat.Player.HPMax,
			v.Combat.Monster.Name, v.Combat.Monster.HP, v.Combat.Monster.HPMax)
		lines := LogLines(v.Combat)
		if n := len(lines); n > 3 {
			lines = lines[n-3:]
		}
		for _, l := range lines {
			sb.WriteString("  " + l + "\n")
		}
	}
	if v.Diag != "" {
		sb.WriteString(ansi.Color("! "+v.Diag, "red+b") + "\n")
	}
	if toast != "" {
		sb.WriteString(ansi.Color(toast, "cyan") + "\n")
	}
	return sb.String()
}

func (r *Renderer) cell(p *Patch, c movement.Cell) string {
	if b, ok := p.BuildingAt(c); ok {
		g := glyphFor(b.Kind)
		return ansi.Color(g.ch, g.style)
	}
	t, ok := p.TileAt(c)
	if !ok {
		return " "
	}
	g := glyphFor(t)
	return ansi.Color(g.ch, g.style)
}

func bar(frac float64, width int) string {
	n := int(math.Round(frac * float64(width)))
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return "[" + strings.Repeat("#", n) + strings.Repeat("-", width-n) + "]"
}
