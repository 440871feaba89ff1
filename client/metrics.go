package client

import (
	"sync/atomic"
)

// Metrics counts what the client did, for monitoring and debugging.
type Metrics struct {
	Requests         int64 // HTTP requests issued
	NetworkErrors    int64 // requests that never got a response
	BadJSON          int64 // responses that did not decode
	HTTPErrors       int64 // non-2xx responses
	Snapshots        int64 // snapshots applied
	SnapshotFailures int64 // snapshot rounds that failed entirely
	PlansStarted     int64
	PlansFinished    int64
	Overflows        int64 // catch-up limit hits
	Resyncs          int64 // hard snaps to the server position
	StaleIgnored     int64 // snapshots discarded by the arrive lock
	Debounced        int64 // destination commands dropped by the limiter
	PatchFetches     int64
	TileHits         int64
	TileMisses       int64
	TileRevalidated  int64
	GatherTicks      int64
	Toasts           int64
	FrameCount       int64
	TotalFrameNs     int64
}

func (m *Metrics) IncRequest() { atomic.AddInt64(&m.Requests, 1) }
func (m *Metrics) IncNetworkError() { atomic.AddInt64(&m.NetworkErrors, 1) }
func (m *Metrics) IncBadJSON() { atomic.AddInt64(&m.BadJSON, 1) }
func (m *Metrics) IncHTTPError() { atomic.AddInt64(&m.HTTPErrors, 1) }
func (m *Metrics) IncSnapshot() { atomic.AddInt64(&m.Snapshots, 1) }
func (m *Metrics) IncSnapshotFailure() { atomic.AddInt64(&m.SnapshotFailures, 1) }
func (m *Metrics) IncPlanStarted() { atomic.AddInt64(&m.PlansStarted, 1) }
func (m *Metrics) IncPlanFinished() { atomic.AddInt64(&m.PlansFinished, 1) }
func (m *Metrics) IncOverflow() { atomic.AddInt64(&m.Overflows, 1) }
func (m *Metrics) IncResync() { atomic.AddInt64(&m.Resyncs, 1) }
func (m *Metrics) IncStaleIgnored() { atomic.AddInt64(&m.StaleIgnored, 1) }
func (m *Metrics) IncDebounced() { atomic.AddInt64(&m.Debounced, 1) }
func (m *Metrics) IncPatchFetch() { atomic.AddInt64(&m.PatchFetches, 1) }
func (m *Metrics) IncTileHit() { atomic.AddInt64(&m.TileHits, 1) }
func (m *Metrics) IncTileMiss() { atomic.AddInt64(&m.TileMisses, 1) }
func (m *Metrics) IncTileRevalidated() { atomic.AddInt64(&m.TileRevalidated, 1) }
func (m *Metrics) IncGatherTick() { atomic.AddInt64(&m.GatherTicks, 1) }
func (m *Metrics) IncToast() { atomic.AddInt64(&m.Toasts, 1) }
func (m *Metrics) AddFrame(ns int64) {
	atomic.AddInt64(&m.FrameCount, 1)
	atomic.AddInt64(&m.TotalFrameNs, ns)
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	frames := atomic.LoadInt64(&m.FrameCount)
	total := atomic.LoadInt64(&m.TotalFrameNs)
	var avgMs float64
	if frames > 0 {
		avgMs = float64(total) / float64(frames) / 1e6
	}
	return map[string]any{
		"requests":          atomic.LoadInt64(&m.Requests),
		"network_errors":    atomic.LoadInt64(&m.NetworkErrors),
		"bad_json":          atomic.LoadInt64(&m.BadJSON),
		"http_errors":       atomic.LoadInt64(&m.HTTPErrors),
		"snapshots":         atomic.LoadInt64(&m.Snapshots),
		"snapshot_failures": atomic.LoadInt64(&m.SnapshotFailures),
		"plans_started":     atomic.LoadInt64(&m.PlansStarted),
		"plans_finished":    atomic.LoadInt64(&m.PlansFinished),
		"overflows":         atomic.LoadInt64(&m.Overflows),
		"resyncs":           atomic.LoadInt64(&m.Resyncs),
		"stale_ignored":     atomic.LoadInt64(&m.StaleIgnored),
		"debounced":         atomic.LoadInt64(&m.Debounced),
		"patch_fetches":     atomic.LoadInt64(&m.PatchFetches),
		"tile_hits":         atomic.LoadInt64(&m.TileHits),
		"tile_misses":       atomic.LoadInt64(&m.TileMisses),
		"tile_revalidated":  atomic.LoadInt64(&m.TileRevalidated),
		"gather_ticks":      atomic.LoadInt64(&m.GatherTicks),
		"toasts":            atomic.LoadInt64(&m.Toasts),
		"frames":            frames,
		"avg_frame_ms":      avgMs,
	}
}
