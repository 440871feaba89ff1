package worldsim

import (
	"context"
	"time"
)

// TicksPerSecond is how often the world advances on its own.
const TicksPerSecond = 5

var tickInterval = time.Second / TicksPerSecond

// StartTicker advances every player in the background until ctx ends,
// so heroes keep walking between polls. Calling it twice is a no-op.
func (w *World) StartTicker(ctx context.Context) {
	w.ticker.Do(func() {
		go func() {
			t := time.NewTicker(tickInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					start := time.Now()
					w.Step()
					w.metrics.AddTick(time.Since(start).Nanoseconds())
				}
			}
		}()
	})
}

// Step runs one tick: drain leave requests, drop idle players, then
// advance everyone.
func (w *World) Step() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.processLeaves()
	if w.cfg.IdleTimeout > 0 {
		idle := w.cfg.IdleTimeout.Seconds()
		for id, p := range w.players {
			if now-p.LastSeen > idle {
				w.leave(id)
			}
		}
	}
	for _, p := range w.players {
		w.advance(p, now)
	}
}

// RequestLeave removes a player on the next tick.
func (w *World) RequestLeave(id PlayerID) {
	select {
	case w.leaveChan <- id:
	default:
		// full: the idle reaper gets it later
		Log.Warnf("leave queue full, dropping %s", id)
	}
}

// processLeaves drains pending leave requests. mu held.
func (w *World) processLeaves() {
	for {
		select {
		case id := <-w.leaveChan:
			w.leave(id)
		default:
			return
		}
	}
}

// leave forgets a player and its temporary camp. mu held.
func (w *World) leave(id PlayerID) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	w.removeTempCamp(p)
	delete(w.players, id)
	w.metrics.IncReaped()
	Log.Infof("player %s left", id)
}
