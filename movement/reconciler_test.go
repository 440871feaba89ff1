package movement

import (
	"strings"
	"testing"
)

func intp(v int) *int { return &v }

func newStarted(t *testing.T, m PlanMsg) *Reconciler {
	t.Helper()
	r := NewReconciler(DefaultConfig())
	r.ApplySnapshot(Observation{Pos: m.Start}, m.Now)
	if _, ok := r.StartPlan(m, m.Now); !ok {
		t.Fatalf("StartPlan(%+v) refused", m)
	}
	return r
}

func TestPlanRunsToCompletion(t *testing.T) {
	for _, start := range []float64{0, 1000.25} {
		r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "RRD", StepT: 0.6, Now: start})
		frame, ev := r.Advance(start + 1.8)
		if got := frame.Pos; got != (Position{X: 2, Y: 1}) {
			t.Fatalf("start=%v pos = %+v, want (2,1)", start, got)
		}
		if frame.PlanActive || r.Plan().Active {
			t.Fatalf("start=%v plan still active", start)
		}
		if !ev.PlanFinished {
			t.Fatalf("start=%v PlanFinished not reported", start)
		}
		if r.Anim() != nil {
			t.Fatalf("start=%v anim left behind", start)
		}
		want := []Cell{{1, 0}, {2, 0}}
		if len(ev.Entered) != len(want) || ev.Entered[0] != want[0] || ev.Entered[1] != want[1] {
			t.Fatalf("start=%v entered = %v, want %v", start, ev.Entered, want)
		}
	}
}

func TestPlanFrameByFrame(t *testing.T) {
	const t0 = 500.0
	r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "RRD", StepT: 0.6, Now: t0})
	var last Position
	finished := false
	for i := 0; i <= 108; i++ {
		frame, ev := r.Advance(t0 + float64(i)/60)
		if frame.Pos.X < last.X || frame.Pos.Y < last.Y {
			t.Fatalf("frame %d went backwards: %+v after %+v", i, frame.Pos, last)
		}
		last = frame.Pos
		finished = finished || ev.PlanFinished
	}
	if last != (Position{X: 2, Y: 1}) || !finished {
		t.Fatalf("pos = %+v finished=%v", last, finished)
	}
}

func TestPlanStopAt(t *testing.T) {
	r := newStarted(t, PlanMsg{Start: Cell{3, 3}, Dirs: "RRRR", StepT: 0.5, Now: 10, StopAt: intp(2)})
	frame, ev := r.Advance(20)
	if frame.Pos != (Position{X: 5, Y: 3}) || !ev.PlanFinished {
		t.Fatalf("pos = %+v finished=%v", frame.Pos, ev.PlanFinished)
	}
}

func TestPlanStepTimeFloor(t *testing.T) {
	r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "R", StepT: 0.01, Now: 1})
	if got := r.Plan().StepT; got != 0.1 {
		t.Fatalf("StepT = %v, want 0.1", got)
	}
	r = newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "R", Now: 1})
	if got := r.Plan().StepT; got != 0.6 {
		t.Fatalf("StepT = %v, want default 0.6", got)
	}
}

func TestEmptyPlanIsRefused(t *testing.T) {
	r := NewReconciler(DefaultConfig())
	if _, ok := r.StartPlan(PlanMsg{Start: Cell{1, 1}, Now: 1}, 1); ok {
		t.Fatal("empty plan accepted")
	}
	if r.Plan().Active {
		t.Fatal("plan active after refusal")
	}
}

func TestCatchUpOverflowResyncs(t *testing.T) {
	r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: strings.Repeat("R", 20), StepT: 0.1, Now: 0})
	frame, ev := r.Advance(10)
	if !ev.Overflow {
		t.Fatal("overflow not reported")
	}
	if frame.Pos != (Position{X: 16, Y: 0}) {
		t.Fatalf("pos = %+v, want last reached cell (16,0)", frame.Pos)
	}
	if r.Plan().Active || r.Anim() != nil {
		t.Fatal("plan not abandoned")
	}
	ev = r.ApplySnapshot(Observation{Pos: Cell{17, 0}, PathLeft: 0}, 10.1)
	if !ev.Resynced {
		t.Fatal("snapshot after overflow did not resync")
	}
	if frame, _ = r.Advance(10.2); frame.Pos != (Position{X: 17, Y: 0}) {
		t.Fatalf("pos = %+v, want server (17,0)", frame.Pos)
	}
}

func TestHardResyncOnDesync(t *testing.T) {
	tests := []struct {
		name   string
		plan   bool
		server Cell
		anim   *ServerAnim
		want   Position
	}{
		{name: "idle far", server: Cell{5, 5}, want: Position{X: 5, Y: 5}},
		{name: "plan far", plan: true, server: Cell{3, 2}, want: Position{X: 3, Y: 2}},
		{name: "diagonal", server: Cell{1, 1}, want: Position{X: 1, Y: 1}},
		{
			name:   "server step leaving",
			server: Cell{5, 0},
			anim:   &ServerAnim{Moving: true, Frm: Cell{5, 0}, To: Cell{6, 0}, T: 1, P0: 0.5},
			want:   Position{X: 5, Y: 0},
		},
		{
			name:   "server step arrived",
			server: Cell{6, 0},
			anim:   &ServerAnim{Moving: true, Frm: Cell{5, 0}, To: Cell{6, 0}, T: 1, P0: 0.5},
			want:   Position{X: 6, Y: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler(DefaultConfig())
			r.ApplySnapshot(Observation{Pos: Cell{0, 0}}, 1)
			if tt.plan {
				r.StartPlan(PlanMsg{Start: Cell{0, 0}, Dirs: "RRRR", StepT: 1, Now: 1}, 1)
				r.Advance(1.2)
			}
			ev := r.ApplySnapshot(Observation{Pos: tt.server, PathLeft: 2, Anim: tt.anim}, 1.3)
			if !ev.Resynced {
				t.Fatal("no resync")
			}
			frame, _ := r.Advance(1.31)
			if frame.Pos != tt.want {
				t.Fatalf("pos = %+v, want %+v", frame.Pos, tt.want)
			}
		})
	}
}

func TestSmallDivergenceDuringPlanIsTolerated(t *testing.T) {
	r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "RRRR", StepT: 1, Now: 0})
	r.Advance(1.5)
	ev := r.ApplySnapshot(Observation{Pos: Cell{1, 0}, PathLeft: 3}, 1.5)
	if ev.Resynced {
		t.Fatal("resynced on a one-cell divergence")
	}
	if !r.Plan().Active {
		t.Fatal("plan dropped")
	}
}

func TestCampCancelsPlan(t *testing.T) {
	r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "RRRR", StepT: 1, Now: 0})
	r.Advance(0.5)
	r.Cancel()
	if r.Plan().Active || r.Anim() != nil {
		t.Fatal("Cancel left plan or anim")
	}

	r = newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "RRRR", StepT: 1, Now: 0})
	r.Advance(0.5)
	r.ApplySnapshot(Observation{Pos: Cell{0, 0}, CampHere: true, CampMine: true}, 0.6)
	if r.Plan().Active || r.Anim() != nil {
		t.Fatal("camp snapshot left plan or anim")
	}
	frame, _ := r.Advance(0.7)
	if !frame.HideHero || !frame.Camp {
		t.Fatalf("frame = %+v, want hidden hero in own camp", frame)
	}
}

func TestRestingSuppressesMovingIndicator(t *testing.T) {
	r := NewReconciler(DefaultConfig())
	r.ApplySnapshot(Observation{Pos: Cell{2, 2}, Resting: true, PathLeft: 4}, 1)
	frame, _ := r.Advance(1.1)
	if frame.Indicator != IndicatorResting {
		t.Fatalf("indicator = %v, want resting", frame.Indicator)
	}

	r.ApplySnapshot(Observation{Pos: Cell{2, 2}, PathLeft: 4}, 1.2)
	if frame, _ = r.Advance(1.3); frame.Indicator != IndicatorMoving {
		t.Fatalf("indicator = %v, want moving", frame.Indicator)
	}
}

func TestServerAnimNeverRegressesOnEdge(t *testing.T) {
	r := NewReconciler(DefaultConfig())
	r.ApplySnapshot(Observation{Pos: Cell{0, 0}, PathLeft: 1}, 10)

	p0s := []float64{0.1, 0.5, 0.3, 0.2, 0.8, 0.4, 0.6}
	now := 10.0
	last := -1.0
	for i, p0 := range p0s {
		now += 0.05
		obs := Observation{
			Pos:      Cell{0, 0},
			PathLeft: 1,
			Anim:     &ServerAnim{Moving: true, Frm: Cell{0, 0}, To: Cell{1, 0}, T: 2, P0: p0},
		}
		if i == 3 {
			ts := now - 2
			obs.Anim.TS = &ts
			obs.Anim.P0 = 0
		}
		if i == 5 {
			ts := now + 1
			obs.Anim.TS = &ts
		}
		r.ApplySnapshot(obs, now)
		for j := 0; j < 3; j++ {
			frame, _ := r.Advance(now + float64(j)*0.01)
			if frame.Pos.X < last {
				t.Fatalf("snapshot %d frame %d: x=%v went back from %v", i, j, frame.Pos.X, last)
			}
			last = frame.Pos.X
		}
	}
}

func TestArriveLockIgnoresStaleAnim(t *testing.T) {
	r := newStarted(t, PlanMsg{Start: Cell{0, 0}, Dirs: "RR", StepT: 0.5, Now: 0})
	_, ev := r.Advance(1.0)
	if !ev.PlanFinished {
		t.Fatal("plan not finished")
	}
	stale := &ServerAnim{Moving: true, Frm: Cell{1, 0}, To: Cell{2, 0}, T: 0.5, P0: 0.1}
	ev = r.ApplySnapshot(Observation{Pos: Cell{1, 0}, PathLeft: 1, Anim: stale}, 1.3)
	if !ev.StaleIgnored {
		t.Fatal("stale anim not ignored")
	}
	frame, _ := r.Advance(1.35)
	if frame.Pos != (Position{X: 2, Y: 0}) {
		t.Fatalf("pos = %+v, want (2,0)", frame.Pos)
	}

	// After the lock expires an idle snapshot wins.
	r.ApplySnapshot(Observation{Pos: Cell{2, 0}}, 3)
	if frame, _ = r.Advance(3.1); frame.Pos != (Position{X: 2, Y: 0}) || frame.Indicator != IndicatorIdle {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestIdleSnapshotSnapsWithinOneCell(t *testing.T) {
	r := NewReconciler(DefaultConfig())
	r.ApplySnapshot(Observation{Pos: Cell{4, 4}}, 1)
	r.ApplySnapshot(Observation{Pos: Cell{5, 4}}, 2)
	if got := r.Pos(); got != (Position{X: 5, Y: 4}) {
		t.Fatalf("pos = %+v, want (5,4)", got)
	}
}

func TestDirectionRoundTrip(t *testing.T) {
	for _, ch := range []byte("UDLR") {
		if got := ParseDirection(ch).Byte(); got != ch {
			t.Fatalf("round trip %q -> %q", ch, got)
		}
	}
	if ParseDirection('x') != DirNone {
		t.Fatal("unknown char parsed")
	}
	if got := (Cell{1, 1}).Add(DirUp); got != (Cell{1, 0}) {
		t.Fatalf("Add(Up) = %+v", got)
	}
}
