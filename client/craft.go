package client

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Component is one ingredient of a recipe.
type Component struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Qty  int    `json:"qty"`
	Icon string `json:"icon,omitempty"`
}

// CraftResult is what a recipe produces.
type CraftResult struct {
	Key  string `json:"key,omitempty"`
	Name string `json:"name"`
	Qty  int    `json:"qty,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// Recipe is a craftable item.
type Recipe struct {
	Key          string      `json:"key"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Category     string      `json:"category,omitempty"`
	CraftTimeSec float64     `json:"craft_time_sec"`
	MinLevel     int         `json:"min_level,omitempty"`
	Components   []Component `json:"components"`
	Result       CraftResult `json:"result"`
}

// Duration is the crafting time.
func (r Recipe) Duration() time.Duration {
	return time.Duration(r.CraftTimeSec * float64(time.Second))
}

// CraftStatus is the running craft. Times are unix seconds.
type CraftStatus struct {
	SessionID    int64   `json:"session_id,omitempty"`
	RecipeKey    string  `json:"recipe_key,omitempty"`
	RecipeName   string  `json:"recipe_name"`
	StartedAt    float64 `json:"started_at"`
	FinishAt     float64 `json:"finish_at"`
	Progress     float64 `json:"progress"`
	RemainingSec float64 `json:"remaining_sec"`
	Ready        bool    `json:"ready"`
}

// At recomputes progress and remaining time for a wall-clock instant.
func (s CraftStatus) At(now time.Time) CraftStatus {
	t := float64(now.UnixNano()) / 1e9
	span := s.FinishAt - s.StartedAt
	if span > 0 {
		s.Progress = math.Min(1, math.Max(0, (t-s.StartedAt)/span))
	}
	s.RemainingSec = math.Max(0, s.FinishAt-t)
	s.Ready = s.RemainingSec <= 0
	return s
}

// Remaining is the time left as a duration.
func (s CraftStatus) Remaining() time.Duration {
	return time.Duration(s.RemainingSec * float64(time.Second))
}

// Craft drives the workshop panel.
type Craft struct {
	api   *API
	notes *Notifier
	clock Clock

	mu          sync.Mutex
	status      *CraftStatus
	announced   int64
	didAnnounce bool
	recipes     map[string][]Recipe
}

func NewCraft(api *API, notes *Notifier, clock Clock) *Craft {
	if clock == nil {
		clock = RealClock()
	}
	return &Craft{api: api, notes: notes, clock: clock}
}

// Recipes loads the recipe book grouped by category.
func (c *Craft) Recipes(ctx context.Context) (map[string][]Recipe, error) {
	r := c.api.CraftRecipes(ctx)
	if !r.OK {
		return nil, r.Err()
	}
	c.mu.Lock()
	c.recipes = r.Categories
	c.mu.Unlock()
	return r.Categories, nil
}

// Categories lists the loaded categories in order.
func (c *Craft) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.recipes))
	for k := range c.recipes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Recipe fetches one recipe.
func (c *Craft) Recipe(ctx context.Context, key string) (*Recipe, error) {
	r := c.api.CraftRecipe(ctx, key)
	if !r.OK {
		return nil, r.Err()
	}
	if r.Recipe == nil {
		return nil, fmt.Errorf("recipe %s: empty reply", key)
	}
	return r.Recipe, nil
}

// Start begins crafting a recipe.
func (c *Craft) Start(ctx context.Context, key string) error {
	r := c.api.CraftStart(ctx, key)
	if !r.OK {
		c.notes.Warn("Could not start crafting: %s", r.Text("unknown error"))
		return r.Err()
	}
	c.notes.Toast("%s", r.Text("Crafting started"))
	c.mu.Lock()
	c.status = r.CraftStatus
	c.mu.Unlock()
	return nil
}

// Complete collects a finished craft.
func (c *Craft) Complete(ctx context.Context) (*CraftResult, error) {
	r := c.api.CraftComplete(ctx)
	if !r.OK {
		c.notes.Warn("Could not finish crafting: %s", r.Text("unknown error"))
		return nil, r.Err()
	}
	name := "Item"
	if r.Result != nil && r.Result.Name != "" {
		name = r.Result.Name
	}
	c.notes.Toast("Crafted: %s", name)
	c.mu.Lock()
	c.status = nil
	c.mu.Unlock()
	return r.Result, nil
}

// Cancel aborts the running craft.
func (c *Craft) Cancel(ctx context.Context) error {
	r := c.api.CraftCancel(ctx)
	if !r.OK {
		c.notes.Warn("Could not cancel crafting: %s", r.Text("unknown error"))
		return r.Err()
	}
	c.notes.Toast("%s", r.Text("Crafting cancelled"))
	c.mu.Lock()
	c.status = nil
	c.mu.Unlock()
	return nil
}

// CheckStatus polls the server. A craft that became ready is announced
// once.
func (c *Craft) CheckStatus(ctx context.Context) (*CraftStatus, error) {
	r := c.api.CraftStatus(ctx)
	if !r.OK {
		return nil, r.Err()
	}
	c.mu.Lock()
	c.status = r.CraftStatus
	announce := false
	if st := r.CraftStatus; st != nil && st.Ready {
		announce = !c.didAnnounce || c.announced != st.SessionID
		c.announced, c.didAnnounce = st.SessionID, true
	} else {
		c.didAnnounce = false
	}
	c.mu.Unlock()
	if announce {
		c.notes.Toast("%s is ready!", r.CraftStatus.RecipeName)
	}
	return r.CraftStatus, nil
}

// Status returns the running craft with a local countdown, or nil.
func (c *Craft) Status() *CraftStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == nil {
		return nil
	}
	st := c.status.At(c.clock.Now())
	return &st
}

// StatusLine is the HUD text of the running craft.
func (c *Craft) StatusLine() string {
	st := c.Status()
	if st == nil {
		return "No active craft"
	}
	if st.Ready {
		return st.RecipeName + ": ready"
	}
	return fmt.Sprintf("%s: %d%%, %s left", st.RecipeName, int(math.Round(st.Progress*100)), FormatRemaining(st.Remaining()))
}
