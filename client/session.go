package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pkworld/movement"
)

// Deps are the collaborators of a Session. Nil fields get defaults; a nil
// Cache disables tile prefetching.
type Deps struct {
	Clock    Clock
	Notifier *Notifier
	Metrics  *Metrics
	Tiles    *TileSet
	Cache    *TileCache
}

// View is what render adapters receive after every change.
type View struct {
	Seq      uint64         `json:"seq"`
	Frame    movement.Frame `json:"frame"`
	Server   movement.Cell  `json:"server"`
	Tile     string         `json:"tile"`
	TileName string         `json:"tile_name"`
	Weather  string         `json:"weather"`
	Climate  string         `json:"climate"`
	Effects  string         `json:"effects"`
	Fatigue  float64        `json:"fatigue"`
	Camp     Camp           `json:"camp"`
	PathLeft int            `json:"path_left"`
	Activity string         `json:"activity"`
	Hidden   bool           `json:"hidden"`
	Patch    *Patch         `json:"-"`
	PatchSig string         `json:"-"`
	TileGen  int            `json:"tile_gen"`
	Gather   GatherState    `json:"gather"`
	Monsters []Monster      `json:"monsters,omitempty"`
	Combat   *CombatState   `json:"combat,omitempty"`
	Craft    string         `json:"craft"`
	Diag     string         `json:"diag,omitempty"`
}

// Tuning is the runtime-adjustable part of the configuration.
type Tuning struct {
	CadenceMs  map[string]int  `json:"cadence_ms"`
	DebounceMs int             `json:"debounce_ms"`
	Movement   movement.Config `json:"movement"`
}

// Session is one connected client: it owns the predicted position, the
// poll loops and the feature controllers.
type Session struct {
	cfg     Config
	api     *API
	clock   Clock
	notes   *Notifier
	metrics *Metrics
	tiles   *TileSet
	cache   *TileCache
	epoch   time.Time
	limiter *rate.Limiter

	Gather    *Gatherer
	Combat    *Combat
	Craft     *Craft
	Inventory *Inventory

	inFlight atomic.Bool
	seq      atomic.Uint64

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	closed         bool
	rec            *movement.Reconciler
	ts             movement.TimeSync
	cadence        movement.Cadence
	debounce       time.Duration
	hidden         bool
	frame          movement.Frame
	last           *Snapshot
	patch          *Patch
	patchSig       string
	patchGen       int
	patchBusy      bool
	idlePrefetched bool
	tickTimer      Timer
	timers         []Timer
	subs           map[int]func(View)
	nextSub        int
	lastFrame      movement.Frame

	wg sync.WaitGroup
}

// NewSession wires a session. Nothing runs until Init.
func NewSession(cfg Config, api *API, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = &Metrics{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNotifier(cfg.ToastHistory, false, deps.Clock, deps.Metrics)
	}
	if deps.Tiles == nil {
		deps.Tiles = NewTileSet(cfg.TileVersions, cfg.HiDPI)
	}
	debounce := ms(cfg.DebounceMs, 150)
	s := &Session{
		cfg:      cfg,
		api:      api,
		clock:    deps.Clock,
		notes:    deps.Notifier,
		metrics:  deps.Metrics,
		tiles:    deps.Tiles,
		cache:    deps.Cache,
		epoch:    deps.Clock.Now(),
		limiter:  rate.NewLimiter(rate.Every(debounce), 1),
		rec:      movement.NewReconciler(cfg.Movement),
		cadence:  cfg.Cadence(),
		debounce: debounce,
		subs:     map[int]func(View){},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.Gather = NewGatherer(api, s.notes, s.clock, s.metrics, s.surroundings, GatherOptions{
		Mode:      cfg.GatherDefaultMode,
		Tick:      ms(cfg.GatherTickMs, 5000),
		Windup:    ms(cfg.GatherWindupMs, 2000),
		MinWindup: ms(cfg.GatherMinWindupMs, 800),
		Timeout:   ms(cfg.RequestTimeoutMs, 15000),
	})
	s.Gather.bind(s.after, func() context.Context {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.ctx
	})
	s.Combat = NewCombat(api, s.notes, s.RefreshNow)
	s.Craft = NewCraft(api, s.notes, s.clock)
	s.Inventory = NewInventory(api, s.notes)
	s.Gather.OnFound = func(FoundItem) {
		s.async(func(ctx context.Context) { _ = s.Inventory.Refresh(ctx) })
	}
	s.Gather.OnFatigue = func(f float64) {
		s.mu.Lock()
		if s.last != nil {
			s.last.Fatigue = f
		}
		s.mu.Unlock()
		s.publish(true)
	}
	return s
}

// Init starts the frame loop and the poll loops.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	run := s.ctx
	s.mu.Unlock()

	if fps := s.cfg.FrameRate; fps > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			t := time.NewTicker(time.Second / time.Duration(fps))
			defer t.Stop()
			for {
				select {
				case <-run.Done():
					return
				case <-t.C:
					s.Frame()
				}
			}
		}()
	}

	s.scheduleTick(10 * time.Millisecond)
	if s.api.Endpoints().TileVersions != "" {
		s.every(ms(s.cfg.TileVersionsEveryMs, 15000), s.pollTileVersions)
	}
	if s.api.Endpoints().CraftStatus != "" {
		s.every(ms(s.cfg.CraftStatusEveryMs, 5000), s.pollCraft)
	}
	if s.api.Endpoints().InvList != "" {
		s.async(func(ctx context.Context) { _ = s.Inventory.Refresh(ctx) })
	}
	Log.Infof("session %s started against %s", s.api.SessionID(), s.cfg.Server)
	return nil
}

// Close stops every loop and waits for in-flight work.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.tickTimer != nil {
		s.tickTimer.Stop()
		s.tickTimer = nil
	}
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.mu.Unlock()

	s.cancel()
	s.Gather.Halt()
	s.wg.Wait()
	Log.Infof("session %s closed", s.api.SessionID())
}

// Closed reports whether Close ran.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// enter registers one unit of background work; false once closed.
func (s *Session) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Session) reqCtx() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	return context.WithTimeout(base, ms(s.cfg.RequestTimeoutMs, 15000))
}

func (s *Session) async(f func(ctx context.Context)) {
	if !s.enter() {
		return
	}
	go func() {
		defer s.wg.Done()
		ctx, cancel := s.reqCtx()
		defer cancel()
		f(ctx)
	}()
}

// after runs f once after d unless the session closes first.
func (s *Session) after(d time.Duration, f func()) Timer {
	return s.clock.AfterFunc(d, func() {
		if !s.enter() {
			return
		}
		defer s.wg.Done()
		f()
	})
}

// every runs f every d until the session closes.
func (s *Session) every(d time.Duration, f func(ctx context.Context)) {
	var slot int
	var run func()
	run = func() {
		ctx, cancel := s.reqCtx()
		f(ctx)
		cancel()
		s.mu.Lock()
		if !s.closed {
			s.timers[slot] = s.after(d, run)
		}
		s.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot = len(s.timers)
	s.timers = append(s.timers, s.after(d, run))
}

// localElapsed is the monotonic time since the session was built.
func (s *Session) localElapsed() time.Duration { return s.clock.Now().Sub(s.epoch) }

func wallSeconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

// serverNow must be called with mu held. Until the first snapshot has
// anchored the sync it falls back to the local wall clock without
// seeding it.
func (s *Session) serverNow() float64 {
	if !s.ts.Inited() {
		return wallSeconds(s.clock.Now())
	}
	return s.ts.Now(s.localElapsed())
}

// ServerNow is the blended server clock in seconds.
func (s *Session) ServerNow() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverNow()
}

// scheduleTick replaces the pending poll with one due after d.
func (s *Session) scheduleTick(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.tickTimer != nil {
		s.tickTimer.Stop()
	}
	s.tickTimer = s.after(d, s.loop)
}

// loop is one round of the adaptive poll: fetch unless a local plan is
// running, then come back after the cadence of the current activity.
func (s *Session) loop() {
	s.mu.Lock()
	s.tickTimer = nil
	planActive := s.rec.Plan().Active
	s.mu.Unlock()

	if !planActive {
		ctx, cancel := s.reqCtx()
		if err := s.Tick(ctx); err != nil && !errors.Is(err, ErrInFlight) {
			Log.Debugf("tick: %v", err)
		}
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.tickTimer != nil {
		// someone asked for an earlier round meanwhile
		return
	}
	next := s.cadence.Interval(s.activity())
	s.tickTimer = s.after(next, s.loop)
}

// activity must be called with mu held.
func (s *Session) activity() movement.Activity {
	return movement.ActivityOf(s.hidden, s.rec.Moving(), s.rec.Resting())
}

// Activity is the current poll state.
func (s *Session) Activity() movement.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity()
}

// NextPoll is the interval the poll loop would wait now.
func (s *Session) NextPoll() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence.Interval(s.activity())
}

// Tick runs one snapshot round. Failures raise the diagnostic overlay
// and leave the local state alone.
func (s *Session) Tick(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer s.inFlight.Store(false)
	s.notes.HideDiag()

	ep := s.api.Endpoints()
	if ep.State == "" {
		s.notes.ShowDiag("no state endpoint configured")
		s.publish(true)
		return ErrNoEndpoint
	}
	snap := s.api.State(ctx)
	if !snap.OK && ep.StateGet != "" {
		if g := s.api.StateGet(ctx); g.OK {
			snap = g
		}
	}
	if !snap.OK {
		s.metrics.IncSnapshotFailure()
		s.notes.ShowDiag("could not fetch state: http=%d error=%s detail=%s", snap.HTTP, snap.Error, snap.Detail)
		s.publish(true)
		return snap.Err()
	}
	s.apply(ctx, &snap)
	return nil
}

func (s *Session) apply(ctx context.Context, snap *Snapshot) {
	s.mu.Lock()
	local := s.localElapsed()
	srv := snap.Now
	if srv == 0 {
		srv = wallSeconds(s.clock.Now())
	}
	s.ts.BlendTo(srv, local)
	now := s.ts.Now(local)

	ev := s.rec.ApplySnapshot(snap.Observation(), now)
	s.last = snap

	var prefetch *Patch
	all := false
	if snap.Patch != nil {
		sig := snap.Patch.Signature()
		if sig != s.patchSig || s.patchGen != s.tiles.Gen() {
			prefetch = snap.Patch
			if !s.idlePrefetched {
				s.idlePrefetched = true
				all = true
			}
		}
		s.patch, s.patchSig, s.patchGen = snap.Patch, sig, s.tiles.Gen()
	}
	frame, adv := s.rec.Advance(now)
	s.frame = frame
	campHere := s.rec.CampHere()
	s.mu.Unlock()

	s.metrics.IncSnapshot()
	s.Combat.Apply(snap.Monsters, snap.Combat)
	if campHere && s.Gather.Active() {
		_ = s.Gather.Stop(ctx)
	}
	if prefetch != nil {
		s.prefetch(prefetch, all)
	}
	s.handleEvents(ev)
	s.handleEvents(adv)
	s.publish(true)
}

func (s *Session) handleEvents(ev movement.Events) {
	if ev.Resynced {
		s.metrics.IncResync()
		Log.Debugf("resync to server position")
	}
	if ev.StaleIgnored {
		s.metrics.IncStaleIgnored()
	}
	for _, c := range ev.Entered {
		s.ensurePatchFor(c)
	}
	if ev.Overflow {
		s.metrics.IncOverflow()
		Log.Warnf("catch-up limit hit, resyncing")
		s.scheduleTick(0)
	} else if ev.PlanFinished {
		s.metrics.IncPlanFinished()
		s.scheduleTick(30 * time.Millisecond)
	}
}

// Frame advances the animation to the current server time.
func (s *Session) Frame() movement.Frame {
	start := time.Now()
	s.mu.Lock()
	if !s.ts.Inited() {
		f := s.frame
		s.mu.Unlock()
		return f
	}
	f, ev := s.rec.Advance(s.serverNow())
	s.frame = f
	s.mu.Unlock()

	s.handleEvents(ev)
	s.publish(false)
	s.metrics.AddFrame(time.Since(start).Nanoseconds())
	return f
}

// ensurePatchFor fetches a fresh patch when c is near the loaded border.
func (s *Session) ensurePatchFor(c movement.Cell) {
	if s.api.Endpoints().PatchView == "" {
		return
	}
	s.mu.Lock()
	p := s.patch
	if p == nil || !p.NearEdge(c) || s.patchBusy {
		s.mu.Unlock()
		return
	}
	s.patchBusy = true
	s.mu.Unlock()

	s.async(func(ctx context.Context) {
		defer func() {
			s.mu.Lock()
			s.patchBusy = false
			s.mu.Unlock()
		}()
		s.metrics.IncPatchFetch()
		r := s.api.Patch(ctx, c)
		if !r.OK || r.Patch == nil {
			Log.Debugf("patch read-ahead at %d,%d: %v", c.X, c.Y, r.Err())
			return
		}
		s.mu.Lock()
		sig := r.Patch.Signature()
		changed := sig != s.patchSig
		s.patch, s.patchSig = r.Patch, sig
		s.mu.Unlock()
		if changed {
			s.prefetch(r.Patch, false)
			s.publish(true)
		}
	})
}

// prefetch resolves the tile images of a patch and, once, of every tile.
func (s *Session) prefetch(p *Patch, all bool) {
	if s.cache == nil {
		return
	}
	s.async(func(ctx context.Context) {
		n := s.cache.ResolveTiles(ctx, s.tiles, UniqueTiles(p))
		if all {
			n += s.cache.ResolveTiles(ctx, s.tiles, AllTiles())
		}
		if n > 0 {
			Log.Debugf("prefetched %d tile images", n)
			s.publish(true)
		}
	})
}

func (s *Session) pollTileVersions(ctx context.Context) {
	r := s.api.TileVersions(ctx)
	if !r.OK || r.Versions == nil {
		return
	}
	if !s.tiles.Merge(r.Versions) {
		return
	}
	Log.Infof("tile versions changed, generation %d", s.tiles.Gen())
	s.mu.Lock()
	p := s.patch
	all := !s.idlePrefetched
	s.idlePrefetched = true
	s.mu.Unlock()
	if p != nil {
		s.prefetch(p, all)
	}
	s.publish(true)
}

func (s *Session) pollCraft(ctx context.Context) {
	if _, err := s.Craft.CheckStatus(ctx); err != nil {
		Log.Debugf("craft status: %v", err)
	}
}

func (s *Session) surroundings() Surroundings {
	s.mu.Lock()
	defer s.mu.Unlock()
	env := Surroundings{
		Camped: s.rec.CampHere(),
		Moving: s.rec.Moving(),
	}
	if s.last != nil {
		env.Tile = s.last.Tile
		env.Weather = s.last.Weather.Code()
		env.Climate = s.last.ClimateKey()
	}
	return env
}

// SetDestination routes the hero to c. Commands within the debounce
// window are dropped without a request.
func (s *Session) SetDestination(ctx context.Context, c movement.Cell) error {
	s.mu.Lock()
	camped := s.rec.CampHere()
	s.mu.Unlock()
	if camped {
		s.notes.Toast("Cannot move while the camp is deployed. Pack it up first.")
		return ErrCamped
	}
	if !s.limiter.AllowN(s.clock.Now(), 1) {
		s.metrics.IncDebounced()
		return ErrDebounced
	}

	r := s.api.SetDest(ctx, c)
	if !r.OK {
		s.notes.Warn("%s", r.Text("Error"))
		s.scheduleTick(50 * time.Millisecond)
		return r.Err()
	}
	s.notes.Toast("%s", r.Text("OK"))
	if r.Plan == nil || r.Plan.Dirs == "" {
		s.scheduleTick(50 * time.Millisecond)
		return nil
	}

	s.mu.Lock()
	ev, ok := s.rec.StartPlan(*r.Plan, s.serverNow())
	s.frame = s.rec.Frame()
	s.mu.Unlock()
	if ok {
		s.metrics.IncPlanStarted()
		Log.Debugf("plan %s from %d,%d", r.Plan.Dirs, r.Plan.Start.X, r.Plan.Start.Y)
	}
	if s.Gather.Active() {
		_ = s.Gather.Stop(ctx)
	}
	s.handleEvents(ev)
	s.publish(true)
	return nil
}

// cancelMotion drops the local plan and animation.
func (s *Session) cancelMotion() {
	s.mu.Lock()
	s.rec.Cancel()
	s.frame = s.rec.Frame()
	s.mu.Unlock()
	s.publish(true)
}

// Stop halts the hero.
func (s *Session) Stop(ctx context.Context) error {
	s.cancelMotion()
	if s.Gather.Active() {
		_ = s.Gather.Stop(ctx)
	}
	r := s.api.Stop(ctx)
	s.notes.Toast("%s", r.Text("Stop"))
	s.scheduleTick(30 * time.Millisecond)
	return r.Err()
}

// ToggleCamp deploys or packs up the camp. The local plan is dropped
// before any request goes out.
func (s *Session) ToggleCamp(ctx context.Context) error {
	s.cancelMotion()
	if s.Gather.Active() {
		_ = s.Gather.Stop(ctx)
	}
	s.mu.Lock()
	here := s.rec.CampHere()
	s.mu.Unlock()

	var r Reply
	if here {
		r = s.api.CampLeave(ctx)
		s.notes.Toast("%s", r.Text(okOr(r.OK, "Camp packed up", "Error")))
	} else {
		r = s.api.CampStart(ctx)
		s.notes.Toast("%s", r.Text(okOr(r.OK, "Camp deployed", "Error")))
	}
	s.scheduleTick(30 * time.Millisecond)
	return r.Err()
}

func okOr(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// ToggleGather starts or stops gathering.
func (s *Session) ToggleGather(ctx context.Context) error {
	if s.Gather.Active() {
		return s.Gather.Stop(ctx)
	}
	return s.Gather.Start(ctx)
}

// SetHidden switches the background cadence. Coming back refreshes soon
// unless a plan is running.
func (s *Session) SetHidden(hidden bool) {
	s.mu.Lock()
	was := s.hidden
	s.hidden = hidden
	planActive := s.rec.Plan().Active
	s.mu.Unlock()
	if was && !hidden && !planActive {
		s.scheduleTick(50 * time.Millisecond)
	}
	s.publish(true)
}

// RefreshNow asks for a snapshot right away.
func (s *Session) RefreshNow() { s.scheduleTick(0) }

// Plan returns the local plan.
func (s *Session) Plan() movement.StepPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Plan()
}

// Anim returns the in-flight step, nil when standing.
func (s *Session) Anim() *movement.Anim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Anim()
}

// Pos is the displayed position.
func (s *Session) Pos() movement.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Pos()
}

// Last returns the last applied snapshot.
func (s *Session) Last() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Notifier returns the toast sink.
func (s *Session) Notifier() *Notifier { return s.notes }

// Metrics returns the counters.
func (s *Session) Metrics() *Metrics { return s.metrics }

// Tiles returns the tile version table.
func (s *Session) Tiles() *TileSet { return s.tiles }

// Tuning returns the adjustable settings.
func (s *Session) Tuning() Tuning {
	s.mu.Lock()
	defer s.mu.Unlock()
	cad := map[string]int{}
	for a, d := range s.cadence {
		cad[a.String()] = int(d / time.Millisecond)
	}
	return Tuning{
		CadenceMs:  cad,
		DebounceMs: int(s.debounce / time.Millisecond),
		Movement:   s.rec.Config(),
	}
}

// SetTuning applies adjustable settings. Zero cadence and debounce
// entries keep the current value; the movement tuning is replaced whole.
func (s *Session) SetTuning(t Tuning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range []movement.Activity{movement.Idle, movement.Moving, movement.Resting, movement.Hidden} {
		if v, ok := t.CadenceMs[a.String()]; ok && v > 0 {
			s.cadence[a] = time.Duration(v) * time.Millisecond
		}
	}
	if t.DebounceMs > 0 {
		s.debounce = time.Duration(t.DebounceMs) * time.Millisecond
		s.limiter.SetLimitAt(s.clock.Now(), rate.Every(s.debounce))
	}
	s.rec.SetConfig(t.Movement)
}

// Subscribe registers f for every published view. The returned func
// removes it. f must not block.
func (s *Session) Subscribe(f func(View)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = f
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// View builds the current view.
func (s *Session) View() View {
	s.mu.Lock()
	v := s.viewLocked()
	s.mu.Unlock()
	return s.decorate(v)
}

func (s *Session) viewLocked() View {
	v := View{
		Frame:    s.frame,
		Activity: s.activity().String(),
		Hidden:   s.hidden,
		Patch:    s.patch,
		PatchSig: s.patchSig,
		TileGen:  s.tiles.Gen(),
	}
	if l := s.last; l != nil {
		v.Server = l.Pos
		v.Tile = l.Tile
		v.TileName = PrettyTileName(l.Tile)
		v.Weather = l.Weather.Code()
		v.Climate = l.ClimateKey()
		var note string
		if l.Weather != nil {
			note = string(l.Weather.Note)
		}
		v.Effects = Effects(l.Tile, v.Weather, note)
		v.Fatigue = l.Fatigue
		v.Camp = l.Camp
		v.PathLeft = l.PathLeft
	}
	return v
}

// decorate fills in parts owned by other locks.
func (s *Session) decorate(v View) View {
	v.Seq = s.seq.Add(1)
	v.Gather = s.Gather.State()
	v.Monsters = s.Combat.Monsters()
	v.Combat = s.Combat.State()
	v.Craft = s.Craft.StatusLine()
	v.Diag, _ = s.notes.Diag()
	return v
}

// publish sends the view to subscribers. Frames that changed nothing are
// skipped unless force is set.
func (s *Session) publish(force bool) {
	s.mu.Lock()
	if !force && s.frame == s.lastFrame {
		s.mu.Unlock()
		return
	}
	s.lastFrame = s.frame
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	subs := make([]func(View), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	v := s.viewLocked()
	s.mu.Unlock()

	v = s.decorate(v)
	for _, f := range subs {
		f(v)
	}
}
