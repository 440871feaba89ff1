package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pkworld/movement"
)

// Endpoints are the server paths the client talks to. Any of them can be
// overridden by the boot config; empty StateGet disables the GET fallback.
type Endpoints struct {
	State        string `json:"state"`
	StateGet     string `json:"stateGet"`
	SetDest      string `json:"setDest"`
	Stop         string `json:"stop"`
	CampStart    string `json:"campStart"`
	CampLeave    string `json:"campLeave"`
	TileVersions string `json:"tileVersions"`
	PatchView    string `json:"patchView"`

	GatherStart string `json:"gatherStart"`
	GatherStop  string `json:"gatherStop"`
	GatherTick  string `json:"gatherTick"`

	CombatState  string `json:"combatState"`
	CombatEngage string `json:"combatEngage"`
	CombatAttack string `json:"combatAttack"`
	CombatFlee   string `json:"combatFlee"`

	InvList string `json:"invList"`
	InvDrop string `json:"invDrop"`

	CraftRecipes  string `json:"craftRecipes"`
	CraftRecipe   string `json:"craftRecipe"`
	CraftStart    string `json:"craftStart"`
	CraftComplete string `json:"craftComplete"`
	CraftStatus   string `json:"craftStatus"`
	CraftCancel   string `json:"craftCancel"`
}

// DefaultEndpoints mirrors the routes of the game server.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		State:        "/world/state",
		SetDest:      "/world/set_dest",
		Stop:         "/world/stop",
		CampStart:    "/world/camp/start",
		CampLeave:    "/world/camp/leave",
		TileVersions: "/world/tile_versions",
		PatchView:    "/world/patch",

		GatherStart: "/world/gather/start",
		GatherStop:  "/world/gather/stop",
		GatherTick:  "/world/gather/tick",

		CombatState:  "/world/combat/state",
		CombatEngage: "/world/combat/engage",
		CombatAttack: "/world/combat/attack",
		CombatFlee:   "/world/combat/flee",

		InvList: "/inv/api/list",
		InvDrop: "/inv/api/drop",

		CraftRecipes:  "/craft/api/recipes",
		CraftRecipe:   "/craft/api/recipe/",
		CraftStart:    "/craft/api/start",
		CraftComplete: "/craft/api/complete",
		CraftStatus:   "/craft/api/status",
		CraftCancel:   "/craft/api/cancel",
	}
}

// Config is the boot configuration of a client session.
type Config struct {
	Server            string           `json:"server"`
	Endpoints         Endpoints        `json:"endpoints"`
	TileVersions      map[string]int64 `json:"tile_versions"`
	GatherDefaultMode string           `json:"gather_default_mode"`
	HiDPI             bool             `json:"hidpi"`
	Desktop           bool             `json:"desktop_notifications"`

	// Poll intervals by activity name: idle, moving, resting, hidden.
	CadenceMs map[string]int `json:"cadence_ms"`

	DebounceMs          int `json:"debounce_ms"`
	FrameRate           int `json:"frame_rate"`
	TileVersionsEveryMs int `json:"tile_versions_every_ms"`
	CraftStatusEveryMs  int `json:"craft_status_every_ms"`
	GatherTickMs        int `json:"gather_tick_ms"`
	GatherWindupMs      int `json:"gather_windup_ms"`
	GatherMinWindupMs   int `json:"gather_min_windup_ms"`
	RequestTimeoutMs    int `json:"request_timeout_ms"`
	ToastHistory        int `json:"toast_history"`

	Movement movement.Config `json:"movement"`
}

// DefaultConfig returns a configuration that works against the stock server.
func DefaultConfig() Config {
	cad := movement.DefaultCadence()
	return Config{
		Server:            "http://localhost:5000",
		Endpoints:         DefaultEndpoints(),
		TileVersions:      map[string]int64{},
		GatherDefaultMode: "forage",
		CadenceMs: map[string]int{
			movement.Idle.String():    int(cad[movement.Idle] / time.Millisecond),
			movement.Moving.String():  int(cad[movement.Moving] / time.Millisecond),
			movement.Resting.String(): int(cad[movement.Resting] / time.Millisecond),
			movement.Hidden.String():  int(cad[movement.Hidden] / time.Millisecond),
		},
		DebounceMs:          150,
		FrameRate:           60,
		TileVersionsEveryMs: 15000,
		CraftStatusEveryMs:  5000,
		GatherTickMs:        5000,
		GatherWindupMs:      2000,
		GatherMinWindupMs:   800,
		RequestTimeoutMs:    15000,
		ToastHistory:        32,
		Movement:            movement.DefaultConfig(),
	}
}

// LoadConfig reads a JSON boot config on top of the defaults. A missing
// path yields the defaults. PK_SERVER overrides the server URL.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if srv := os.Getenv("PK_SERVER"); srv != "" {
		cfg.Server = srv
	}
	return cfg, nil
}

// Cadence converts the millisecond table into a movement.Cadence.
func (c Config) Cadence() movement.Cadence {
	out := movement.DefaultCadence()
	for _, a := range []movement.Activity{movement.Idle, movement.Moving, movement.Resting, movement.Hidden} {
		if ms, ok := c.CadenceMs[a.String()]; ok && ms > 0 {
			out[a] = time.Duration(ms) * time.Millisecond
		}
	}
	return out
}

func ms(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}
