package worldsim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"pkworld/movement"
)

// Config tunes the simulated world.
type Config struct {
	Seed           int64
	StepT          float64 // seconds per step
	ViewW, ViewH   int
	PadX, PadY     int
	FatiguePerTile float64
	RestPerSec     float64
	CampRestBonus  float64
	GatherFactor   float64
	GatherWindupMs int
	GatherTickMs   int
	BaseMiss       float64
	CapacityKg     float64
	IdleTimeout    time.Duration
	// Now is the world clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig matches the stock game server.
func DefaultConfig() Config {
	return Config{
		Seed:           1,
		StepT:          1 / 1.6,
		ViewW:          15,
		ViewH:          9,
		PadX:           8,
		PadY:           5,
		FatiguePerTile: 0.8,
		RestPerSec:     0.5,
		CampRestBonus:  1.15,
		GatherFactor:   4,
		GatherWindupMs: 2000,
		GatherTickMs:   5000,
		BaseMiss:       0.40,
		CapacityKg:     30,
		IdleTimeout:    10 * time.Minute,
	}
}

// World holds every player and building. All methods are safe for
// concurrent use.
type World struct {
	cfg     Config
	terrain *Terrain
	metrics *Metrics

	mu        sync.Mutex
	players   map[PlayerID]*Player
	buildings map[movement.Cell]*Building
	rng       *rand.Rand
	tileVer   int64

	leaveChan chan PlayerID
	ticker    sync.Once
}

// New builds a world with a town at the origin.
func New(cfg Config) *World {
	def := DefaultConfig()
	if cfg.StepT <= 0 {
		cfg.StepT = def.StepT
	}
	if cfg.ViewW <= 0 || cfg.ViewH <= 0 {
		cfg.ViewW, cfg.ViewH = def.ViewW, def.ViewH
	}
	if cfg.PadX <= 0 || cfg.PadY <= 0 {
		cfg.PadX, cfg.PadY = def.PadX, def.PadY
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	w := &World{
		cfg:       cfg,
		terrain:   NewTerrain(cfg.Seed),
		metrics:   &Metrics{},
		players:   map[PlayerID]*Player{},
		buildings: map[movement.Cell]*Building{},
		rng:       rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15)),
		tileVer:   cfg.Now().Unix(),
		leaveChan: make(chan PlayerID, 64),
	}
	for _, b := range []Building{{Kind: "town", X: 0, Y: 0}, {Kind: "tavern", X: 2, Y: 1}} {
		w.buildings[b.Cell()] = &b
	}
	return w
}

// Metrics returns the world counters.
func (w *World) Metrics() *Metrics { return w.metrics }

// Terrain returns the map generator.
func (w *World) Terrain() *Terrain { return w.terrain }

func (w *World) now() float64 {
	return float64(w.cfg.Now().UnixNano()) / 1e9
}

// player returns the player of id, creating it at the origin. mu held.
func (w *World) player(id PlayerID, now float64) *Player {
	p, ok := w.players[id]
	if !ok {
		p = &Player{ID: id, LastUpdate: now, GatherMode: "forage", Inv: Inventory{CapacityKg: w.cfg.CapacityKg}}
		w.players[id] = p
		Log.Infof("player %s joined", id)
	}
	p.LastSeen = now
	return p
}

// tileAt is the drawn tile of a cell: a building kind or the ground. mu held.
func (w *World) tileAt(c movement.Cell) string {
	if b, ok := w.buildings[c]; ok {
		return b.Kind
	}
	return w.terrain.TileAt(c.X, c.Y)
}

func (w *World) passable(c movement.Cell) bool {
	if _, ok := w.buildings[c]; ok {
		return true
	}
	return Passable(w.terrain.TileAt(c.X, c.Y))
}

// advance walks p forward to now. Partial steps carry over: LastUpdate
// stays at the start of the step in progress.
func (w *World) advance(p *Player, now float64) {
	dt := math.Max(0, now-p.LastUpdate)
	weather := w.terrain.WeatherAt(p.Pos, now)

	if p.Resting || len(p.Path) == 0 {
		rest := w.cfg.RestPerSec / math.Max(0.1, weather.FatigueMul)
		if b, ok := w.buildings[p.Pos]; ok && b.Kind == "camp" {
			rest *= w.cfg.CampRestBonus
			p.Resting = true
		}
		p.Fatigue = math.Max(0, p.Fatigue-rest*dt)
		p.LastUpdate = now
		return
	}

	stepT := w.cfg.StepT
	left := dt
	for left >= stepT && len(p.Path) > 0 {
		next := p.Path[0]
		if !w.passable(next) {
			p.Path = nil
			break
		}
		p.Pos = next
		p.Path = p.Path[1:]
		left -= stepT
		p.Fatigue += w.cfg.FatiguePerTile * w.terrain.WeatherAt(next, now).FatigueMul
		if p.Fatigue >= 100 {
			p.Fatigue = 100
			p.Path = nil
			p.Resting = true
			break
		}
	}
	if len(p.Path) == 0 {
		p.Dest = nil
		left = 0
	}
	p.LastUpdate = now - left
}

// Patch is a window of tiles centred on a cell, with the read-ahead
// margin the client should keep.
type Patch struct {
	OX        int        `json:"ox"`
	OY        int        `json:"oy"`
	W         int        `json:"w"`
	H         int        `json:"h"`
	Tiles     [][]string `json:"tiles"`
	Buildings []Building `json:"buildings"`
	Pad       Pad        `json:"pad"`
	Center    Center     `json:"center"`
}

// Pad is the read-ahead margin in cells.
type Pad struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Center locates the centre cell inside a patch.
type Center struct {
	I int `json:"i"`
	J int `json:"j"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Screen is the visible window in cells.
type Screen struct {
	OX int `json:"ox"`
	OY int `json:"oy"`
	W  int `json:"w"`
	H  int `json:"h"`
}

// patch builds the buffer around c: the view plus the pad on every side. mu held.
func (w *World) patch(c movement.Cell) *Patch {
	pw, ph := w.cfg.ViewW+2*w.cfg.PadX, w.cfg.ViewH+2*w.cfg.PadY
	ox, oy := c.X-pw/2, c.Y-ph/2
	p := &Patch{
		OX: ox, OY: oy, W: pw, H: ph,
		Tiles:     make([][]string, ph),
		Buildings: []Building{},
		Pad:       Pad{X: w.cfg.PadX, Y: w.cfg.PadY},
		Center:    Center{I: pw / 2, J: ph / 2, X: c.X, Y: c.Y},
	}
	for j := 0; j < ph; j++ {
		row := make([]string, pw)
		for i := 0; i < pw; i++ {
			row[i] = w.tileAt(movement.Cell{X: ox + i, Y: oy + j})
		}
		p.Tiles[j] = row
	}
	for cell, b := range w.buildings {
		if cell.X >= ox && cell.X < ox+pw && cell.Y >= oy && cell.Y < oy+ph {
			p.Buildings = append(p.Buildings, *b)
		}
	}
	// map order would change the client's patch signature on every call
	sort.Slice(p.Buildings, func(i, j int) bool {
		if p.Buildings[i].Y != p.Buildings[j].Y {
			return p.Buildings[i].Y < p.Buildings[j].Y
		}
		return p.Buildings[i].X < p.Buildings[j].X
	})
	return p
}

// State is the reply of the state endpoint.
type State struct {
	OK       bool                 `json:"ok"`
	Pos      movement.Cell        `json:"pos"`
	Screen   Screen               `json:"screen"`
	Dest     *movement.Cell       `json:"dest"`
	PathLeft int                  `json:"path_left"`
	Tile     string               `json:"tile"`
	Patch    *Patch               `json:"patch"`
	Weather  Weather              `json:"weather"`
	Climate  string               `json:"climate"`
	Fatigue  float64              `json:"fatigue"`
	Resting  bool                 `json:"resting"`
	Camp     Camp                 `json:"camp"`
	Anim     *movement.ServerAnim `json:"anim"`
	Inv      InvTotals            `json:"inventory"`
	Now      float64              `json:"now"`
}

// State advances the player and describes it.
func (w *World) State(id PlayerID) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)

	st := State{
		OK:       true,
		Pos:      p.Pos,
		Screen:   Screen{OX: p.Pos.X - w.cfg.ViewW/2, OY: p.Pos.Y - w.cfg.ViewH/2, W: w.cfg.ViewW, H: w.cfg.ViewH},
		Dest:     p.Dest,
		PathLeft: len(p.Path),
		Tile:     w.tileAt(p.Pos),
		Patch:    w.patch(p.Pos),
		Weather:  w.terrain.WeatherAt(p.Pos, now),
		Climate:  w.terrain.Climate(p.Pos),
		Fatigue:  round(p.Fatigue, 1),
		Resting:  p.Resting,
		Camp:     w.campInfo(p),
		Inv:      p.Inv.Totals(),
		Now:      now,
	}
	if len(p.Path) > 0 {
		next := p.Path[0]
		ts := p.LastUpdate
		st.Anim = &movement.ServerAnim{
			Moving: true,
			Frm:    p.Pos,
			To:     next,
			T:      w.cfg.StepT,
			TS:     &ts,
			P0:     math.Max(0, math.Min(1, (now-p.LastUpdate)/w.cfg.StepT)),
			Edge:   p.Pos.Edge(next),
		}
	}
	return st
}

func (w *World) campInfo(p *Player) Camp {
	b, ok := w.buildings[p.Pos]
	if !ok || b.Kind != "camp" {
		return Camp{}
	}
	return Camp{Here: true, Mine: b.Owner == p.ID, Temp: b.Temp}
}

// Reply is the generic answer of a command.
type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Plan is the route summary the client animates locally.
type Plan struct {
	Start movement.Cell `json:"start"`
	Dirs  string        `json:"dirs"`
	StepT float64       `json:"step_t"`
	Now   float64       `json:"now"`
}

// DestReply answers set_dest.
type DestReply struct {
	Reply
	Steps int   `json:"steps,omitempty"`
	Plan  *Plan `json:"plan,omitempty"`
}

// SetDest routes the player to target. Leaving a cell drops the
// player's temporary camp there.
func (w *World) SetDest(id PlayerID, target movement.Cell) DestReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)
	w.removeTempCamp(p)
	p.Gathering = false

	if p.Pos == target {
		p.Dest, p.Path = nil, nil
		return DestReply{Reply: Reply{OK: true, Message: "Already there"}}
	}
	path := FindPath(w.passable, p.Pos, target)
	if path == nil {
		w.metrics.IncPathNotFound()
		return DestReply{Reply: Reply{OK: false, Message: "No path (water, lava or obstacles)."}}
	}
	dest := target
	p.Dest = &dest
	p.Path = path
	p.LastUpdate = now
	p.Resting = false
	w.metrics.IncPlan()
	return DestReply{
		Reply: Reply{OK: true, Message: "Route set"},
		Steps: len(path),
		Plan: &Plan{
			Start: p.Pos,
			Dirs:  EncodeDirs(p.Pos, path),
			StepT: w.cfg.StepT,
			Now:   now,
		},
	}
}

// Stop clears the route.
func (w *World) Stop(id PlayerID) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)
	p.Dest, p.Path = nil, nil
	p.LastUpdate = now
	w.metrics.IncStop()
	return Reply{OK: true, Message: "Stopped"}
}

func (w *World) removeTempCamp(p *Player) {
	if b, ok := w.buildings[p.Pos]; ok && b.Kind == "camp" && b.Temp && b.Owner == p.ID {
		delete(w.buildings, p.Pos)
	}
}

// CampStart pitches a temporary camp on the player's cell.
func (w *World) CampStart(id PlayerID) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)

	if !Passable(w.terrain.TileAt(p.Pos.X, p.Pos.Y)) {
		return Reply{OK: false, Message: "Cannot camp on water or lava."}
	}
	if b, ok := w.buildings[p.Pos]; ok {
		if b.Kind != "camp" {
			return Reply{OK: false, Message: "The cell is taken by a building."}
		}
		if !b.Temp || b.Owner != p.ID {
			return Reply{OK: false, Message: "There is a camp here already."}
		}
		w.settle(p, now)
		return Reply{OK: true, Message: "You are in your camp already"}
	}
	w.buildings[p.Pos] = &Building{Kind: "camp", X: p.Pos.X, Y: p.Pos.Y, Owner: p.ID, Temp: true}
	w.settle(p, now)
	w.metrics.IncCamp()
	return Reply{OK: true, Message: "Camp pitched. Time to rest."}
}

func (w *World) settle(p *Player, now float64) {
	p.Resting = true
	p.Gathering = false
	p.Dest, p.Path = nil, nil
	p.LastUpdate = now
}

// CampLeave packs up the player's temporary camp.
func (w *World) CampLeave(id PlayerID) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)
	b, ok := w.buildings[p.Pos]
	if !ok || b.Kind != "camp" || !b.Temp || b.Owner != p.ID {
		return Reply{OK: false, Message: "No temporary camp of yours here."}
	}
	delete(w.buildings, p.Pos)
	p.Resting = false
	return Reply{OK: true, Message: "Camp packed up. The road is open."}
}

// PatchReply answers the patch endpoint.
type PatchReply struct {
	OK    bool   `json:"ok"`
	Patch *Patch `json:"patch"`
}

// PatchAt returns the buffer around any cell.
func (w *World) PatchAt(c movement.Cell) PatchReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	return PatchReply{OK: true, Patch: w.patch(c)}
}

// GatherReply answers the gather endpoints.
type GatherReply struct {
	Reply
	Mode     string      `json:"mode,omitempty"`
	WindupMs int         `json:"windup_ms,omitempty"`
	TickMs   int         `json:"tick_ms,omitempty"`
	Items    []FoundItem `json:"items,omitempty"`
	Fatigue  *float64    `json:"fatigue,omitempty"`
	Full     bool        `json:"full,omitempty"`
	Totals   *InvTotals  `json:"totals,omitempty"`
}

// FoundItem is one gathered item.
type FoundItem struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Qty      int     `json:"qty"`
	WeightKg float64 `json:"weight_kg"`
}

// GatherStart arms gathering for the player.
func (w *World) GatherStart(id PlayerID, mode string) GatherReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)
	if len(p.Path) > 0 {
		return GatherReply{Reply: Reply{OK: false, Error: "moving", Message: "Stop moving first."}}
	}
	if c := w.campInfo(p); c.Here && c.Mine {
		return GatherReply{Reply: Reply{OK: false, Error: "camped", Message: "Pack up the camp first."}}
	}
	if mode != "" {
		p.GatherMode = mode
	}
	p.Gathering = true
	return GatherReply{
		Reply:    Reply{OK: true, Message: "Gathering started"},
		Mode:     p.GatherMode,
		WindupMs: w.cfg.GatherWindupMs,
		TickMs:   w.cfg.GatherTickMs,
	}
}

// GatherStop ends gathering.
func (w *World) GatherStop(id PlayerID) GatherReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.player(id, w.now())
	p.Gathering = false
	return GatherReply{Reply: Reply{OK: true, Message: "Gathering stopped"}, Mode: p.GatherMode}
}

// GatherTick runs one gathering attempt: a base fatigue cost, a miss
// roll, then one item and extra fatigue by its weight.
func (w *World) GatherTick(id PlayerID) GatherReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	w.advance(p, now)
	w.metrics.IncGatherTick()

	if !p.Gathering {
		return GatherReply{Reply: Reply{OK: false, Error: "not_gathering", Message: "Gathering is not running."}}
	}
	if len(p.Path) > 0 {
		p.Gathering = false
		return GatherReply{Reply: Reply{OK: false, Error: "moving", Message: "Gathering interrupted by movement."}}
	}

	weather := w.terrain.WeatherAt(p.Pos, now)
	base := w.cfg.FatiguePerTile * w.cfg.GatherFactor * weather.FatigueMul
	reply := func(msg string, extra float64) GatherReply {
		p.Fatigue = math.Max(0, math.Min(100, p.Fatigue+base+extra))
		f := round(p.Fatigue, 1)
		t := p.Inv.Totals()
		return GatherReply{Reply: Reply{OK: true, Message: msg}, Mode: p.GatherMode, TickMs: w.cfg.GatherTickMs, Fatigue: &f, Totals: &t}
	}

	if p.Fatigue >= 100-1e-6 {
		f := p.Fatigue
		return GatherReply{Reply: Reply{OK: true, Message: "You are exhausted."}, Fatigue: &f}
	}
	tile := w.tileAt(p.Pos)
	biome := biomeOf(tile)
	table, ok := dropTables[biome]
	if !ok {
		if tile == "town" || tile == "tavern" || tile == "camp" {
			return reply("Nothing to gather here.", 0)
		}
		table = dropTables[TileGrass]
	}
	if w.rng.Float64() < missChance(w.cfg.BaseMiss, weather.Key, biome) {
		return reply("Nothing found.", 0)
	}
	key := pick(table, w.rng.Float64())
	if key == "" {
		return reply("Nothing found.", 0)
	}
	def := itemDefs[key]
	if err := p.Inv.Give(key, 1); err != nil {
		w.metrics.IncOverweight()
		r := reply("Overloaded. Free up your pack.", 0)
		r.Error = err.Error()
		r.Full = true
		return r
	}
	w.metrics.IncItemFound()
	extra := base * math.Min(6, 2*def.WeightKg)
	r := reply(fmt.Sprintf("Found: %s x1 (%.2f kg)", def.Name, def.WeightKg), extra)
	r.Items = []FoundItem{{Key: key, Name: def.Name, Qty: 1, WeightKg: round(def.WeightKg, 3)}}
	return r
}

// InventoryReply answers the inventory endpoints.
type InventoryReply struct {
	Reply
	Items  []InvItem  `json:"items,omitempty"`
	Totals InvTotals  `json:"totals"`
	Counts *InvCounts `json:"counts,omitempty"`
	InvID  int64      `json:"inv_id,omitempty"`
}

// Inventory lists the player's bag.
func (w *World) Inventory(id PlayerID) InventoryReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.player(id, w.now())
	items, counts := p.Inv.Items()
	return InventoryReply{Reply: Reply{OK: true}, Items: items, Totals: p.Inv.Totals(), Counts: &counts}
}

// Drop throws away up to qty pieces of a stack.
func (w *World) Drop(id PlayerID, invID int64, qty int) InventoryReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.player(id, w.now())
	if invID <= 0 || qty <= 0 {
		return InventoryReply{Reply: Reply{OK: false, Error: "bad_args"}}
	}
	def, n, err := p.Inv.Drop(invID, qty)
	if err != nil {
		return InventoryReply{Reply: Reply{OK: false, Error: err.Error()}}
	}
	return InventoryReply{
		Reply:  Reply{OK: true, Message: fmt.Sprintf("Dropped: %s x%d", def.Name, n)},
		Totals: p.Inv.Totals(),
		InvID:  invID,
	}
}

// Give puts items into a player's bag; used to seed test worlds.
func (w *World) Give(id PlayerID, key string, qty int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.player(id, w.now()).Inv.Give(key, qty)
}

// Teleport moves a player, clearing any route. Used by tests and admin.
func (w *World) Teleport(id PlayerID, c movement.Cell) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	p := w.player(id, now)
	p.Pos = c
	p.Dest, p.Path = nil, nil
	p.LastUpdate = now
}

// Player returns a copy of a player's state.
func (w *World) Player(id PlayerID) (Player, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	cp := *p
	cp.Path = append([]movement.Cell(nil), p.Path...)
	return cp, true
}

// Count returns the number of players.
func (w *World) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.players)
}
