package worldsim

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ItemDef describes a gatherable resource.
type ItemDef struct {
	Key      string
	Name     string
	Type     string
	WeightKg float64
	StackMax int
}

var itemDefs = map[string]ItemDef{
	"res_stick":      {"res_stick", "Stick", "resource", 0.2, 50},
	"res_fiber":      {"res_fiber", "Plant fiber", "resource", 0.05, 99},
	"res_berries":    {"res_berries", "Berries", "food", 0.1, 40},
	"res_herb":       {"res_herb", "Herb", "resource", 0.05, 40},
	"res_stone":      {"res_stone", "Stone", "resource", 1.0, 30},
	"res_wood_log":   {"res_wood_log", "Wood log", "resource", 2.5, 20},
	"res_mushroom":   {"res_mushroom", "Mushroom", "food", 0.1, 40},
	"res_reed":       {"res_reed", "Reed", "resource", 0.1, 50},
	"res_clay":       {"res_clay", "Clay", "resource", 1.2, 30},
	"res_peat":       {"res_peat", "Peat", "resource", 0.8, 30},
	"res_fish":       {"res_fish", "Fish", "food", 0.6, 20},
	"res_copper_ore": {"res_copper_ore", "Copper ore", "ore", 1.5, 30},
	"res_iron_ore":   {"res_iron_ore", "Iron ore", "ore", 1.8, 30},
	"res_gold_nug":   {"res_gold_nug", "Gold nugget", "ore", 0.3, 50},
	"res_gem":        {"res_gem", "Gem", "valuable", 0.05, 99},
	"res_sand":       {"res_sand", "Sand", "resource", 1.0, 30},
	"res_cactus":     {"res_cactus", "Cactus pulp", "food", 0.4, 30},
	"res_ice":        {"res_ice", "Ice", "resource", 0.9, 30},
	"res_obsidian":   {"res_obsidian", "Obsidian", "valuable", 1.1, 20},
}

type drop struct {
	key string
	w   int
}

var dropTables = map[string][]drop{
	TileGrass:  {{"res_stick", 9}, {"res_fiber", 7}, {"res_berries", 5}, {"res_herb", 3}, {"res_stone", 3}},
	TileMeadow: {{"res_fiber", 8}, {"res_herb", 5}, {"res_berries", 5}, {"res_stick", 3}},
	TileForest: {{"res_stick", 10}, {"res_wood_log", 6}, {"res_mushroom", 5}, {"res_berries", 4}, {"res_stone", 2}},
	TileSwamp:  {{"res_reed", 8}, {"res_clay", 6}, {"res_peat", 5}, {"res_mushroom", 3}, {"res_fish", 2}},
	TileRock:   {{"res_stone", 9}, {"res_copper_ore", 5}, {"res_iron_ore", 4}, {"res_gold_nug", 1}, {"res_gem", 1}},
	TileSand:   {{"res_sand", 10}, {"res_stone", 3}, {"res_cactus", 3}, {"res_gold_nug", 1}},
	TileDesert: {{"res_sand", 10}, {"res_cactus", 4}, {"res_stone", 3}, {"res_gold_nug", 1}},
	TileWater:  {{"res_fish", 6}, {"res_reed", 6}, {"res_sand", 2}},
	TileSnow:   {{"res_ice", 8}, {"res_stone", 3}, {"res_berries", 1}},
	TileLava:   {{"res_obsidian", 2}, {"res_stone", 4}, {"res_gem", 1}},
	TileRoad:   {{"res_stick", 3}, {"res_stone", 3}},
}

// biomeOf maps a tile key to its drop table key: "forest_snow" -> "forest".
func biomeOf(tile string) string {
	if tile == "" {
		return TileGrass
	}
	b, _, _ := strings.Cut(tile, "_")
	return strings.ToLower(b)
}

// missChance is the chance a gather tick finds nothing.
func missChance(base float64, weather, biome string) float64 {
	miss := base
	switch weather {
	case "storm":
		miss += 0.15
	case "rain":
		miss += 0.05
	case "snow":
		miss += 0.07
	case "heat":
		miss += 0.04
	}
	if (biome == TileWater || biome == TileSwamp) && (weather == "rain" || weather == "storm") {
		miss -= 0.05
	}
	if biome == TileRock && (weather == "rain" || weather == "storm") {
		miss += 0.04
	}
	return math.Max(0.15, math.Min(0.70, miss))
}

// pick draws from a weighted table with r in [0,1).
func pick(table []drop, r float64) string {
	total := 0
	for _, d := range table {
		total += d.w
	}
	if total <= 0 {
		return ""
	}
	x := r * float64(total)
	acc := 0.0
	for _, d := range table {
		acc += float64(d.w)
		if x < acc {
			return d.key
		}
	}
	return table[len(table)-1].key
}

// Stack is one inventory row of a player.
type Stack struct {
	InvID    int64
	Key      string
	Qty      int
	Equipped bool
}

// InvItem is the wire form of a stack.
type InvItem struct {
	InvID       int64   `json:"inv_id"`
	ItemKey     string  `json:"item_key"`
	Name        string  `json:"name"`
	Type        string  `json:"type,omitempty"`
	Qty         int     `json:"qty"`
	WeightKg    float64 `json:"weight_kg"`
	StackMax    int     `json:"stack_max"`
	TotalWeight float64 `json:"total_weight"`
	Equipped    bool    `json:"equipped"`
}

// InvTotals is the carried weight against capacity.
type InvTotals struct {
	WeightKg   float64 `json:"weight_kg"`
	CapacityKg float64 `json:"capacity_kg"`
	LoadPct    float64 `json:"load_pct"`
}

// InvCounts counts stacks and pieces.
type InvCounts struct {
	Stacks int `json:"stacks"`
	Pieces int `json:"pieces"`
}

// Inventory is a player's bag.
type Inventory struct {
	Stacks     []*Stack
	CapacityKg float64
	nextID     int64
}

func (inv *Inventory) weight() float64 {
	total := 0.0
	for _, s := range inv.Stacks {
		total += itemDefs[s.Key].WeightKg * float64(s.Qty)
	}
	return total
}

// Totals reports weight and load.
func (inv *Inventory) Totals() InvTotals {
	w := inv.weight()
	t := InvTotals{WeightKg: round(w, 3), CapacityKg: inv.CapacityKg}
	if inv.CapacityKg > 0 {
		t.LoadPct = round(100*w/inv.CapacityKg, 1)
	}
	return t
}

// Items lists the stacks sorted by item key then id.
func (inv *Inventory) Items() ([]InvItem, InvCounts) {
	rows := append([]*Stack(nil), inv.Stacks...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key != rows[j].Key {
			return rows[i].Key < rows[j].Key
		}
		return rows[i].InvID < rows[j].InvID
	})
	out := make([]InvItem, 0, len(rows))
	var c InvCounts
	for _, s := range rows {
		def := itemDefs[s.Key]
		out = append(out, InvItem{
			InvID:       s.InvID,
			ItemKey:     s.Key,
			Name:        def.Name,
			Type:        def.Type,
			Qty:         s.Qty,
			WeightKg:    def.WeightKg,
			StackMax:    def.StackMax,
			TotalWeight: round(def.WeightKg*float64(s.Qty), 3),
			Equipped:    s.Equipped,
		})
		c.Stacks++
		c.Pieces += s.Qty
	}
	return out, c
}

var (
	// ErrOverweight is returned by Give when the item would not fit.
	ErrOverweight = errors.New("overweight")
	ErrNoStack    = errors.New("not_found")
)

// Give adds qty pieces, filling existing stacks first.
func (inv *Inventory) Give(key string, qty int) error {
	def, ok := itemDefs[key]
	if !ok {
		return fmt.Errorf("unknown item %q", key)
	}
	if inv.CapacityKg > 0 && inv.weight()+def.WeightKg*float64(qty) > inv.CapacityKg {
		return ErrOverweight
	}
	for _, s := range inv.Stacks {
		if qty == 0 {
			return nil
		}
		if s.Key != key || s.Qty >= def.StackMax {
			continue
		}
		n := min(qty, def.StackMax-s.Qty)
		s.Qty += n
		qty -= n
	}
	for qty > 0 {
		n := min(qty, def.StackMax)
		inv.nextID++
		inv.Stacks = append(inv.Stacks, &Stack{InvID: inv.nextID, Key: key, Qty: n})
		qty -= n
	}
	return nil
}

// Drop removes up to qty pieces of a stack and returns how many went.
func (inv *Inventory) Drop(id int64, qty int) (ItemDef, int, error) {
	for i, s := range inv.Stacks {
		if s.InvID != id {
			continue
		}
		n := min(qty, s.Qty)
		s.Qty -= n
		if s.Qty == 0 {
			inv.Stacks = append(inv.Stacks[:i], inv.Stacks[i+1:]...)
		}
		return itemDefs[s.Key], n, nil
	}
	return ItemDef{}, 0, ErrNoStack
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
