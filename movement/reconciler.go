package movement

import "math"

const (
	minStepT    = 0.05
	stepEpsilon = 1e-9
)

// Config tunes the reconciliation heuristics. Times are in seconds.
type Config struct {
	PlanLock           float64 `json:"plan_lock"`
	ArrivalLock        float64 `json:"arrival_lock"`
	SnapDistance       float64 `json:"snap_distance"`
	CatchUpLimit       int     `json:"catch_up_limit"`
	RegressTolerance   float64 `json:"regress_tolerance"`
	DefaultPlanStepT   float64 `json:"default_plan_step_t"`
	MinPlanStepT       float64 `json:"min_plan_step_t"`
	DefaultServerStepT float64 `json:"default_server_step_t"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		PlanLock:           0.7,
		ArrivalLock:        1.0,
		SnapDistance:       1.01,
		CatchUpLimit:       16,
		RegressTolerance:   0.02,
		DefaultPlanStepT:   0.6,
		MinPlanStepT:       0.1,
		DefaultServerStepT: 0.2,
	}
}

// Indicator is the movement pill shown in the HUD.
type Indicator int

const (
	IndicatorIdle Indicator = iota
	IndicatorMoving
	IndicatorResting
)

func (i Indicator) String() string {
	switch i {
	case IndicatorMoving:
		return "moving"
	case IndicatorResting:
		return "resting"
	default:
		return "idle"
	}
}

// MarshalText lets frames carry the indicator as a word.
func (i Indicator) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// Frame is the output of one resampling step.
type Frame struct {
	Pos         Position  `json:"pos"`
	Indicator   Indicator `json:"indicator"`
	Progress    float64   `json:"progress"`
	HasProgress bool      `json:"has_progress"`
	PlanActive  bool      `json:"plan_active"`
	Camp        bool      `json:"camp"`
	HideHero    bool      `json:"hide_hero"`
}

// Events are side effects the caller has to act on.
type Events struct {
	// Entered lists cells where a new step began; used for patch read-ahead.
	Entered []Cell
	// PlanFinished is set when the local plan ran out or hit its stop index.
	PlanFinished bool
	// Overflow is set when more steps were owed than CatchUpLimit allows.
	Overflow bool
	// Resynced is set when a snapshot hard-snapped the position.
	Resynced bool
	// StaleIgnored is set when the arrive lock discarded server movement.
	StaleIgnored bool
}

// Reconciler blends optimistic local movement with server snapshots.
// It does no IO and reads no clock: every call receives server-relative
// time from the caller.
type Reconciler struct {
	cfg       Config
	pos       Position
	plan      StepPlan
	anim      *Anim
	lockUntil float64
	resting   bool
	pathLeft  int
	campHere  bool
	campMine  bool
	resync    bool
	seen      bool
	// doneEdge is the last edge animated to completion.
	doneEdge string
}

// NewReconciler builds a reconciler with the given tuning.
func NewReconciler(cfg Config) *Reconciler {
	if cfg.CatchUpLimit <= 0 {
		cfg.CatchUpLimit = DefaultConfig().CatchUpLimit
	}
	return &Reconciler{cfg: cfg, plan: StepPlan{StopAt: -1}}
}

// Config returns the current tuning.
func (r *Reconciler) Config() Config { return r.cfg }

// SetConfig replaces the tuning; in-flight state is kept.
func (r *Reconciler) SetConfig(cfg Config) {
	if cfg.CatchUpLimit <= 0 {
		cfg.CatchUpLimit = r.cfg.CatchUpLimit
	}
	r.cfg = cfg
}

// Pos is the displayed position.
func (r *Reconciler) Pos() Position { return r.pos }

// Plan returns a copy of the local plan.
func (r *Reconciler) Plan() StepPlan { return r.plan }

// Anim returns a copy of the in-flight step, or nil.
func (r *Reconciler) Anim() *Anim {
	if r.anim == nil {
		return nil
	}
	a := *r.anim
	return &a
}

// Moving reports whether a step is being animated.
func (r *Reconciler) Moving() bool { return r.anim != nil }

// Resting is the last resting flag seen from the server.
func (r *Reconciler) Resting() bool { return r.resting }

// CampHere is the last camp flag seen from the server.
func (r *Reconciler) CampHere() bool { return r.campHere }

// Frame describes the current state without advancing it.
func (r *Reconciler) Frame() Frame { return r.frame() }

// Locked reports whether the arrive lock is armed at now.
func (r *Reconciler) Locked(now float64) bool { return r.lockUntil > now }

// StartPlan begins optimistic execution of a server plan. now is used
// when the plan carries no timestamp.
func (r *Reconciler) StartPlan(m PlanMsg, now float64) (Events, bool) {
	if m.Dirs == "" {
		return Events{}, false
	}
	stepT := m.StepT
	if stepT <= 0 {
		stepT = r.cfg.DefaultPlanStepT
	}
	stepT = math.Max(r.cfg.MinPlanStepT, stepT)
	ts := m.Now
	if ts == 0 {
		ts = now
	}
	stopAt := -1
	if m.StopAt != nil {
		stopAt = *m.StopAt
	}
	r.plan = StepPlan{
		Active: true,
		Start:  m.Start,
		Cur:    m.Start,
		Dirs:   m.Dirs,
		StepT:  stepT,
		TS:     ts,
		StopAt: stopAt,
	}
	first := m.Start.Add(ParseDirection(m.Dirs[0]))
	r.anim = &Anim{From: m.Start, To: first, Duration: stepT, Start: ts, Edge: m.Start.Edge(first)}
	r.pos = At(m.Start)
	r.resting = false
	return Events{Entered: []Cell{m.Start}}, true
}

// Cancel drops the plan and the in-flight step.
func (r *Reconciler) Cancel() {
	r.plan.Active = false
	r.anim = nil
}

// Advance resamples the displayed position at server time now.
func (r *Reconciler) Advance(now float64) (Frame, Events) {
	var ev Events
	if r.plan.Active && r.anim != nil {
		t := math.Max(minStepT, r.anim.Duration)
		p := (now - r.anim.Start) / t
		steps := 0
		for p >= 1-stepEpsilon {
			if steps >= r.cfg.CatchUpLimit {
				// Too far behind to replay: stop here and let the next
				// snapshot put us where the server says we are.
				r.plan.Active = false
				r.anim = nil
				r.resync = true
				ev.Overflow = true
				break
			}
			steps++
			r.doneEdge = r.anim.Edge
			r.pos = At(r.anim.To)
			r.plan.Cur = r.anim.To
			r.plan.Idx++
			if r.plan.done() {
				r.plan.Active = false
				r.anim = nil
				r.lockUntil = now + r.cfg.PlanLock
				ev.PlanFinished = true
				break
			}
			next := r.plan.Cur.Add(ParseDirection(r.plan.Dirs[r.plan.Idx]))
			start := r.anim.Start + t
			r.anim = &Anim{
				From:     r.plan.Cur,
				To:       next,
				Duration: r.plan.StepT,
				Start:    start,
				Edge:     r.plan.Cur.Edge(next),
			}
			t = r.plan.StepT
			p = (now - start) / t
			ev.Entered = append(ev.Entered, r.plan.Cur)
		}
		if r.anim != nil {
			r.interpolate(now)
		}
	}
	if !r.plan.Active && r.anim != nil {
		if r.anim.progress(now) >= 1-stepEpsilon {
			r.doneEdge = r.anim.Edge
			r.pos = At(r.anim.To)
			r.anim = nil
		} else {
			r.interpolate(now)
		}
	}
	return r.frame(), ev
}

func (r *Reconciler) interpolate(now float64) {
	p := clamp01(r.anim.progress(now))
	if p < r.anim.shown {
		p = r.anim.shown
	}
	r.anim.shown = p
	r.pos = Lerp(r.anim.From, r.anim.To, p)
}

func (r *Reconciler) frame() Frame {
	f := Frame{
		Pos:        r.pos,
		PlanActive: r.plan.Active,
		Camp:       r.campHere,
		HideHero:   r.campHere && r.campMine,
	}
	switch {
	case r.resting:
		f.Indicator = IndicatorResting
	case r.anim != nil:
		f.Indicator = IndicatorMoving
		f.Progress = r.anim.shown
		f.HasProgress = true
	case r.pathLeft > 0:
		f.Indicator = IndicatorMoving
	default:
		f.Indicator = IndicatorIdle
	}
	return f
}

// ApplySnapshot folds an authoritative observation in at server time now.
func (r *Reconciler) ApplySnapshot(obs Observation, now float64) Events {
	var ev Events
	first := !r.seen
	r.seen = true
	r.resting = obs.Resting
	r.pathLeft = obs.PathLeft
	r.campHere = obs.CampHere
	r.campMine = obs.CampMine

	sa := obs.Anim
	if sa != nil && !sa.Moving {
		sa = nil
	}
	movingLocal := r.plan.Active || r.anim != nil
	arrived := obs.PathLeft == 0 || (sa != nil && obs.Pos == sa.To)
	if arrived && movingLocal {
		r.lockUntil = math.Max(r.lockUntil, now+r.cfg.ArrivalLock)
	}
	locked := r.lockUntil > now && !r.resync
	hard := r.resync || r.pos.Manhattan(obs.Pos) > r.cfg.SnapDistance

	if r.campHere {
		r.Cancel()
		r.pos = At(obs.Pos)
		r.resync = false
		return ev
	}

	switch {
	case hard:
		// The frame after a resync shows the server cell itself; a server
		// step in flight is picked up from the next snapshot.
		r.Cancel()
		r.pos = At(obs.Pos)
		if sa != nil && obs.Pos == sa.To {
			r.doneEdge = sa.Frm.Edge(sa.To)
			if sa.Edge != "" {
				r.doneEdge = sa.Edge
			}
		}
		ev.Resynced = true
	case sa != nil && !locked:
		r.adopt(sa, obs.Pos, now)
	case first:
		r.pos = At(obs.Pos)
	case sa != nil:
		ev.StaleIgnored = true
	case !r.plan.Active && !locked:
		r.anim = nil
		r.pos = At(obs.Pos)
	case locked:
		ev.StaleIgnored = true
	}
	r.resync = false
	return ev
}

func (r *Reconciler) adopt(sa *ServerAnim, pos Cell, now float64) {
	key := sa.Edge
	if key == "" {
		key = sa.Frm.Edge(sa.To)
	}
	t := sa.T
	if t <= 0 {
		t = r.cfg.DefaultServerStepT
	}
	t = math.Max(minStepT, t)
	start := now - sa.P0*t
	if sa.TS != nil {
		start = *sa.TS
	}
	if pos == sa.To {
		start = now - t
	}
	next := &Anim{From: sa.Frm, To: sa.To, Duration: t, Start: start, Edge: key}
	if r.anim != nil && r.anim.Edge == key {
		prev := math.Max(clamp01(r.anim.progress(now)), r.anim.shown)
		if clamp01(next.progress(now)) < prev-r.cfg.RegressTolerance {
			next.Start = now - prev*t
		}
		next.shown = r.anim.shown
	} else if r.anim == nil && key == r.doneEdge {
		next.Start = now - t
		next.shown = 1
	}
	r.anim = next
	r.plan.Active = false
}
