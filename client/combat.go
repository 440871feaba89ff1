package client

import (
	"context"
	"fmt"
	"sync"
)

// logKeep is how many combat log entries are shown.
const logKeep = 24

// Monster is an encounter near the hero.
type Monster struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Level    int     `json:"level"`
	Role     string  `json:"role,omitempty"`
	Distance *int    `json:"distance,omitempty"`
	Power    *int    `json:"power,omitempty"`
	State    string  `json:"state,omitempty"`
	IsBoss   bool    `json:"is_boss,omitempty"`
	HP       float64 `json:"hp,omitempty"`
}

// Fighter is one side of a fight.
type Fighter struct {
	Name  string  `json:"name,omitempty"`
	HP    float64 `json:"hp"`
	HPMax float64 `json:"hp_max"`
}

// Frac is hp/hp_max clamped to [0,1].
func (f Fighter) Frac() float64 {
	if f.HPMax <= 0 {
		return 0
	}
	v := f.HP / f.HPMax
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Rewards are paid out on victory.
type Rewards struct {
	XP   int `json:"xp"`
	Gold int `json:"gold"`
}

// CombatLogEntry is one line of the fight log.
type CombatLogEntry struct {
	Type    string   `json:"type"`
	Who     string   `json:"who,omitempty"`
	Value   int      `json:"value,omitempty"`
	Crit    bool     `json:"crit,omitempty"`
	Success bool     `json:"success,omitempty"`
	Counter int      `json:"counter,omitempty"`
	Result  string   `json:"result,omitempty"`
	Rewards *Rewards `json:"rewards,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// CombatState is the fight the hero is in, or just finished.
type CombatState struct {
	Active  bool             `json:"active"`
	State   string           `json:"state,omitempty"`
	Monster Fighter          `json:"monster"`
	Player  Fighter          `json:"player"`
	Log     []CombatLogEntry `json:"log,omitempty"`
}

// Visible reports whether the fight card should be shown.
func (s *CombatState) Visible() bool {
	if s == nil {
		return false
	}
	switch s.State {
	case "won", "lost", "fled":
		return true
	}
	return s.Active
}

// StatusLabel describes the fight in a word or two.
func StatusLabel(s *CombatState) string {
	if s == nil {
		return "-"
	}
	if s.Active {
		return "In combat"
	}
	switch s.State {
	case "won":
		return "Victory"
	case "lost":
		return "Defeat"
	case "fled":
		return "Retreated"
	default:
		return "No combat"
	}
}

func whoLabel(who string) string {
	if who == "player" {
		return "You"
	}
	return "Enemy"
}

// Line renders a log entry for display.
func (e CombatLogEntry) Line() string {
	switch e.Type {
	case "hit":
		s := fmt.Sprintf("%s deal %d damage", whoLabel(e.Who), e.Value)
		if e.Crit {
			s += " (crit)"
		}
		return s
	case "miss":
		return whoLabel(e.Who) + " miss"
	case "flee":
		s := "Escape attempt failed"
		if e.Success {
			s = "You slip away from the monster"
		}
		if e.Counter > 0 {
			s += fmt.Sprintf(" (took %d damage)", e.Counter)
		}
		return s
	case "start":
		if e.Text != "" {
			return e.Text
		}
		return "A monster noticed you."
	case "end":
		switch e.Result {
		case "victory":
			s := "Victory!"
			if e.Rewards != nil {
				s += fmt.Sprintf(" +%d xp, +%d gold", e.Rewards.XP, e.Rewards.Gold)
			}
			return s
		case "defeat":
			return "You fell in battle."
		}
	}
	if e.Text != "" {
		return e.Text
	}
	return e.Type
}

// LogLines renders the newest entries of the fight log.
func LogLines(s *CombatState) []string {
	if s == nil || len(s.Log) == 0 {
		return nil
	}
	log := s.Log
	if len(log) > logKeep {
		log = log[len(log)-logKeep:]
	}
	out := make([]string, len(log))
	for i, e := range log {
		out[i] = e.Line()
	}
	return out
}

// MonsterSummary is the encounter header, e.g. "3 monsters, 1 boss".
func MonsterSummary(list []Monster) string {
	if len(list) == 0 {
		return "Calm"
	}
	bosses := 0
	for _, m := range list {
		if m.IsBoss {
			bosses++
		}
	}
	s := fmt.Sprintf("%d %s", len(list), Plural(len(list), "monster", "monsters"))
	if bosses > 0 {
		s += fmt.Sprintf(", %d %s", bosses, Plural(bosses, "boss", "bosses"))
	}
	return s
}

// Combat drives the encounter panel. One action runs at a time.
type Combat struct {
	api     *API
	notes   *Notifier
	refresh func()

	mu       sync.Mutex
	busy     bool
	monsters []Monster
	state    *CombatState
}

// NewCombat builds the controller. refresh is called after every
// successful action so the world view catches up.
func NewCombat(api *API, notes *Notifier, refresh func()) *Combat {
	if refresh == nil {
		refresh = func() {}
	}
	return &Combat{api: api, notes: notes, refresh: refresh}
}

// Apply takes the encounter part of a snapshot.
func (c *Combat) Apply(monsters []Monster, st *CombatState) {
	c.mu.Lock()
	c.monsters = append([]Monster(nil), monsters...)
	c.state = st
	c.mu.Unlock()
}

// Monsters returns the encounters of the last snapshot.
func (c *Combat) Monsters() []Monster {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Monster(nil), c.monsters...)
}

// State returns the current fight, nil when there is none.
func (c *Combat) State() *CombatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether an action is in flight.
func (c *Combat) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Combat) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Combat) end(r *CombatReply) {
	c.mu.Lock()
	if r != nil && r.OK && r.Combat != nil {
		c.state = r.Combat
	}
	c.busy = false
	c.mu.Unlock()
}

// failText picks the server message or a fallback for a failed action.
func failText(r *Reply, prefix, fallback string) string {
	if r.Error == codeNetwork {
		return fallback
	}
	if r.Message != "" {
		return prefix + ": " + r.Message
	}
	return fallback
}

// Engage starts a fight with a monster.
func (c *Combat) Engage(ctx context.Context, id int64) error {
	if id == 0 {
		return fmt.Errorf("engage: no monster id")
	}
	if !c.begin() {
		return ErrBusy
	}
	r := c.api.Engage(ctx, id)
	c.end(&r)
	if !r.OK {
		c.notes.Warn("%s", failText(&r.Reply, "Combat", "Could not start the fight"))
		return r.Err()
	}
	c.notes.Toast("The fight begins")
	c.refresh()
	return nil
}

// Attack swings at the current monster.
func (c *Combat) Attack(ctx context.Context) error {
	if !c.begin() {
		return ErrBusy
	}
	r := c.api.Attack(ctx)
	c.end(&r)
	if !r.OK {
		c.notes.Warn("%s", failText(&r.Reply, "Combat", "Attack failed"))
		return r.Err()
	}
	if r.Rewards != nil {
		c.notes.Toast("Victory! +%d xp, +%s gold", r.Rewards.XP, FormatCount(r.Rewards.Gold))
	}
	c.refresh()
	return nil
}

// Flee tries to escape the current fight.
func (c *Combat) Flee(ctx context.Context) error {
	if !c.begin() {
		return ErrBusy
	}
	r := c.api.Flee(ctx)
	c.end(&r)
	if !r.OK {
		c.notes.Warn("%s", failText(&r.Reply, "Retreat", "Could not retreat"))
		return r.Err()
	}
	if r.Escaped {
		c.notes.Toast("You got away from the monster")
	} else {
		c.notes.Toast("Could not shake it off")
	}
	c.refresh()
	return nil
}
