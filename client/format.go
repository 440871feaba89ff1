package client

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FormatKg renders a weight with at most two decimals.
func FormatKg(kg float64) string {
	return humanize.FormatFloat("#,###.##", math.Round(kg*100)/100) + " kg"
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int) string { return humanize.Comma(int64(n)) }

// FormatRemaining renders a countdown such as "2 minutes 5 seconds".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "done"
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

// Pretty turns a snake_case key into words: "iron_ore" -> "Iron Ore".
func Pretty(key string) string {
	if key == "" {
		return "-"
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// Plural picks the singular or plural form for n.
func Plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var tileEffects = map[string]string{
	"grass": "easy going", "meadow": "pleasant", "forest": "dense", "swamp": "boggy",
	"sand": "heavy", "desert": "thirst", "rock": "uneven", "snow": "slippery",
	"water": "impassable", "lava": "dangerous", "road": "faster",
	"town": "rest", "tavern": "rest", "camp": "rest",
}

var weatherEffects = map[string]string{
	"clear": "fair weather", "rain": "fatigue up", "fog": "visibility down",
	"wind": "gusts", "storm": "speed down", "snow": "speed down", "heat": "fatigue up",
}

// Effects summarizes what the terrain and weather do to the hero.
func Effects(tile, weather, note string) string {
	if strings.HasSuffix(tile, "_snow") {
		tile = "snow"
	}
	var parts []string
	if e, ok := tileEffects[tile]; ok {
		parts = append(parts, e)
	}
	if e, ok := weatherEffects[weather]; ok {
		parts = append(parts, e)
	}
	if n := strings.TrimSpace(note); n != "" {
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return "Effects: -"
	}
	return "Effects: " + strings.Join(parts, ", ")
}
