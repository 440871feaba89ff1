package client

import (
	"context"
	"sync"
	"time"
)

// GatherState is where the gather loop is.
type GatherState int

const (
	GatherIdle GatherState = iota
	GatherWindup
	GatherMining
)

func (s GatherState) String() string {
	switch s {
	case GatherWindup:
		return "windup"
	case GatherMining:
		return "mining"
	default:
		return "idle"
	}
}

// MarshalText lets views carry the state as a word.
func (s GatherState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Surroundings is what the gatherer needs to know about the hero.
type Surroundings struct {
	Tile    string
	Weather string
	Climate string
	Camped  bool
	Moving  bool
}

// GatherOptions tune the loop.
type GatherOptions struct {
	Mode      string
	Tick      time.Duration
	Windup    time.Duration
	MinWindup time.Duration
	Timeout   time.Duration
}

// Gatherer runs the windup then tick loop of resource gathering.
type Gatherer struct {
	api     *API
	notes   *Notifier
	clock   Clock
	metrics *Metrics
	env     func() Surroundings

	// OnFound is called after a tick that found something.
	OnFound func(FoundItem)
	// OnFatigue receives the fatigue reported by every tick.
	OnFatigue func(float64)

	// after arms loop timers and base parents tick requests. A Session
	// swaps in its own so Close cancels and waits for a tick in flight.
	after func(time.Duration, func()) Timer
	base  func() context.Context

	mu    sync.Mutex
	opt   GatherOptions
	state GatherState
	gen   int
	timer Timer
	last  *GatherReply
}

// NewGatherer builds an idle gatherer. env reports the hero's tile and
// whether it may gather right now.
func NewGatherer(api *API, notes *Notifier, clock Clock, m *Metrics, env func() Surroundings, opt GatherOptions) *Gatherer {
	if clock == nil {
		clock = RealClock()
	}
	if m == nil {
		m = &Metrics{}
	}
	if env == nil {
		env = func() Surroundings { return Surroundings{} }
	}
	if opt.Mode == "" {
		opt.Mode = "forage"
	}
	if opt.Tick <= 0 {
		opt.Tick = 5 * time.Second
	}
	if opt.Windup <= 0 {
		opt.Windup = 2 * time.Second
	}
	if opt.MinWindup <= 0 {
		opt.MinWindup = 800 * time.Millisecond
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 15 * time.Second
	}
	return &Gatherer{
		api: api, notes: notes, clock: clock, metrics: m, env: env, opt: opt,
		after: clock.AfterFunc,
		base:  context.Background,
	}
}

func (g *Gatherer) bind(after func(time.Duration, func()) Timer, base func() context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.after, g.base = after, base
}

// State returns the loop state.
func (g *Gatherer) State() GatherState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Active reports whether the loop runs.
func (g *Gatherer) Active() bool { return g.State() != GatherIdle }

// Mode is the gathering mode sent to the server.
func (g *Gatherer) Mode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opt.Mode
}

// SetMode switches the gathering mode.
func (g *Gatherer) SetMode(mode string) {
	if mode == "" {
		return
	}
	g.mu.Lock()
	g.opt.Mode = mode
	g.mu.Unlock()
}

// Last returns the last tick reply.
func (g *Gatherer) Last() *GatherReply {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Start asks the server to begin and arms the windup.
func (g *Gatherer) Start(ctx context.Context) error {
	env := g.env()
	if env.Camped {
		g.notes.Toast("Pack up the camp to gather")
		return ErrCamped
	}
	if env.Moving {
		g.notes.Toast("Stop moving to start gathering")
		return ErrMoving
	}
	if g.State() != GatherIdle {
		return ErrBusy
	}

	r := g.api.GatherStart(ctx, GatherRequest{Mode: g.Mode()})
	if !r.OK {
		g.notes.Warn("Cannot start gathering: %s", r.Text("rejected"))
		return r.Err()
	}
	g.SetMode(r.Mode)

	windup := g.opt.Windup
	if r.WindupMs > 0 {
		windup = time.Duration(r.WindupMs) * time.Millisecond
	}
	if windup < g.opt.MinWindup {
		windup = g.opt.MinWindup
	}

	g.mu.Lock()
	if g.state != GatherIdle {
		g.mu.Unlock()
		return ErrBusy
	}
	g.gen++
	gen := g.gen
	g.state = GatherWindup
	g.timer = g.after(windup, func() { g.afterWindup(gen) })
	g.mu.Unlock()
	Log.Infof("gather: windup %v, mode %s", windup, g.Mode())
	return nil
}

func (g *Gatherer) afterWindup(gen int) {
	g.mu.Lock()
	if g.gen != gen || g.state != GatherWindup {
		g.mu.Unlock()
		return
	}
	g.state = GatherMining
	g.mu.Unlock()
	g.tick(gen)
}

// halt resets to idle; false when already idle.
func (g *Gatherer) halt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GatherIdle {
		return false
	}
	g.state = GatherIdle
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return true
}

// Stop cancels timers and tells the server. A no-op when idle.
func (g *Gatherer) Stop(ctx context.Context) error {
	if !g.halt() {
		return ErrNotGathering
	}
	r := g.api.GatherStop(ctx, GatherRequest{Mode: g.Mode()})
	if !r.OK {
		Log.Debugf("gather stop: %v", r.Err())
		return r.Err()
	}
	if r.Message != "" {
		g.notes.Toast("%s", r.Message)
	}
	return nil
}

// Halt stops the local loop without calling the server.
func (g *Gatherer) Halt() { g.halt() }

func (g *Gatherer) tick(gen int) {
	env := g.env()
	req := GatherRequest{Mode: g.Mode(), Tile: env.Tile, Weather: env.Weather, Climate: env.Climate}
	if req.Tile == "" {
		req.Tile = "grass"
	}
	if req.Weather == "" {
		req.Weather = "clear"
	}

	g.mu.Lock()
	base := g.base
	g.mu.Unlock()
	ctx, cancel := context.WithTimeout(base(), g.opt.Timeout)
	r := g.api.GatherTick(ctx, req)
	cancel()
	g.metrics.IncGatherTick()

	g.mu.Lock()
	if g.gen != gen {
		// stopped while the request was out
		g.mu.Unlock()
		return
	}
	g.last = &r
	g.mu.Unlock()

	if !r.OK {
		g.halt()
		g.notes.Warn("Gathering failed: %s", r.Text("error"))
		return
	}
	g.SetMode(r.Mode)
	if r.Fatigue != nil && g.OnFatigue != nil {
		g.OnFatigue(*r.Fatigue)
	}
	if r.Full {
		g.halt()
		g.notes.Warn("Inventory is full")
		return
	}
	if it := r.Item(); it != nil {
		qty := it.Qty
		if qty <= 0 {
			qty = 1
		}
		g.notes.Toast("Found: %s x%d (%s)", it.Name, qty, FormatKg(it.WeightKg))
		if g.OnFound != nil {
			g.OnFound(*it)
		}
	} else if r.Message != "" {
		g.notes.Toast("%s", r.Message)
	} else {
		g.notes.Toast("Nothing found")
	}
	if r.Fatigue != nil && *r.Fatigue >= 100 {
		g.halt()
		g.notes.Warn("You are exhausted. Gathering stopped.")
		return
	}

	next := g.opt.Tick
	if r.TickMs > 0 {
		next = time.Duration(r.TickMs) * time.Millisecond
	}
	g.mu.Lock()
	if g.gen == gen && g.state == GatherMining {
		g.timer = g.after(next, func() { g.tick(gen) })
	}
	g.mu.Unlock()
}
