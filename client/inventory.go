package client

import (
	"context"
	"fmt"
	"sync"
)

// InvItem is one inventory stack.
type InvItem struct {
	InvID       int64   `json:"inv_id"`
	ItemKey     string  `json:"item_key"`
	Name        string  `json:"name"`
	Type        string  `json:"type,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Qty         int     `json:"qty"`
	WeightKg    float64 `json:"weight_kg"`
	TotalWeight float64 `json:"total_weight"`
	StackMax    int     `json:"stack_max"`
	Equipped    bool    `json:"equipped,omitempty"`
}

// Label is the display name with the quantity.
func (it InvItem) Label() string {
	name := it.Name
	if name == "" {
		name = Pretty(it.ItemKey)
	}
	return fmt.Sprintf("%s x%d", name, it.Qty)
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

// Inventory caches the last item list.
type Inventory struct {
	api   *API
	notes *Notifier

	mu     sync.Mutex
	items  []InvItem
	totals InvTotals
	counts InvCounts
	loaded bool
}

func NewInventory(api *API, notes *Notifier) *Inventory {
	return &Inventory{api: api, notes: notes}
}

// Refresh reloads the list from the server.
func (inv *Inventory) Refresh(ctx context.Context) error {
	r := inv.api.Inventory(ctx)
	if !r.OK {
		inv.notes.Warn("Inventory: %s", r.Text("could not load"))
		return r.Err()
	}
	inv.mu.Lock()
	inv.items = r.Items
	inv.totals = r.Totals
	inv.counts = r.Counts
	inv.loaded = true
	inv.mu.Unlock()
	return nil
}

// Items returns the cached stacks.
func (inv *Inventory) Items() []InvItem {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]InvItem(nil), inv.items...)
}

// Totals returns the cached weight totals and counts.
func (inv *Inventory) Totals() (InvTotals, InvCounts) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.totals, inv.counts
}

// Find looks a stack up by id.
func (inv *Inventory) Find(id int64) (InvItem, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, it := range inv.items {
		if it.InvID == id {
			return it, true
		}
	}
	return InvItem{}, false
}

// ClampDrop limits a drop quantity to [1, stack].
func ClampDrop(qty, stack int) int {
	if qty > stack {
		qty = stack
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}

// Drop throws qty pieces of a stack away and reloads the list. The
// quantity is clamped to the cached stack size when the stack is known.
func (inv *Inventory) Drop(ctx context.Context, id int64, qty int) error {
	if it, ok := inv.Find(id); ok {
		qty = ClampDrop(qty, it.Qty)
	} else if qty < 1 {
		qty = 1
	}
	r := inv.api.Drop(ctx, id, qty)
	if !r.OK {
		if r.Error == codeNetwork {
			inv.notes.Warn("Network unavailable")
		} else {
			inv.notes.Warn("%s", r.Text("Could not drop the item"))
		}
		return r.Err()
	}
	if r.Message != "" {
		inv.notes.Toast("%s", r.Message)
	}
	return inv.Refresh(ctx)
}

// LoadLine summarizes the load for the HUD.
func (inv *Inventory) LoadLine() string {
	t, c := inv.Totals()
	return fmt.Sprintf("%s / %s (%.0f%%), %s %s",
		FormatKg(t.WeightKg), FormatKg(t.CapacityKg), t.LoadPct,
		FormatCount(c.Pieces), Plural(c.Pieces, "piece", "pieces"))
}
