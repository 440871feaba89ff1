package worldsim

import (
	"sync/atomic"
)

// Metrics records what the simulated world did.
type Metrics struct {
	TickCount     int64
	Requests      int64
	PlansIssued   int64
	PathNotFound  int64
	Stops         int64
	CampsPitched  int64
	GatherTicks   int64
	ItemsFound    int64
	Overweight    int64
	PlayersReaped int64
	TotalTickNs   int64
}

func (m *Metrics) IncRequest()      { atomic.AddInt64(&m.Requests, 1) }
func (m *Metrics) IncPlan()         { atomic.AddInt64(&m.PlansIssued, 1) }
func (m *Metrics) IncPathNotFound() { atomic.AddInt64(&m.PathNotFound, 1) }
func (m *Metrics) IncStop()         { atomic.AddInt64(&m.Stops, 1) }
func (m *Metrics) IncCamp()         { atomic.AddInt64(&m.CampsPitched, 1) }
func (m *Metrics) IncGatherTick()   { atomic.AddInt64(&m.GatherTicks, 1) }
func (m *Metrics) IncItemFound()    { atomic.AddInt64(&m.ItemsFound, 1) }
func (m *Metrics) IncOverweight()   { atomic.AddInt64(&m.Overweight, 1) }
func (m *Metrics) IncReaped()       { atomic.AddInt64(&m.PlayersReaped, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":     tick,
		"requests":       atomic.LoadInt64(&m.Requests),
		"plans_issued":   atomic.LoadInt64(&m.PlansIssued),
		"path_not_found": atomic.LoadInt64(&m.PathNotFound),
		"stops":          atomic.LoadInt64(&m.Stops),
		"camps_pitched":  atomic.LoadInt64(&m.CampsPitched),
		"gather_ticks":   atomic.LoadInt64(&m.GatherTicks),
		"items_found":    atomic.LoadInt64(&m.ItemsFound),
		"overweight":     atomic.LoadInt64(&m.Overweight),
		"players_reaped": atomic.LoadInt64(&m.PlayersReaped),
		"avg_tick_ms":    avgMs,
	}
}
