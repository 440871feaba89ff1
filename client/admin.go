package client

import (
	"encoding/json"
	"errors"
	"net/http"
)

type adminConfig struct {
	CadenceIdleMs    *int     `json:"cadenceIdleMs,omitempty"`
	CadenceMovingMs  *int     `json:"cadenceMovingMs,omitempty"`
	CadenceRestingMs *int     `json:"cadenceRestingMs,omitempty"`
	CadenceHiddenMs  *int     `json:"cadenceHiddenMs,omitempty"`
	DebounceMs       *int     `json:"debounceMs,omitempty"`
	PlanLock         *float64 `json:"planLock,omitempty"`
	ArrivalLock      *float64 `json:"arrivalLock,omitempty"`
	SnapDistance     *float64 `json:"snapDistance,omitempty"`
	CatchUpLimit     *int     `json:"catchUpLimit,omitempty"`
	RegressTolerance *float64 `json:"regressTolerance,omitempty"`
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

// HandleAdminConfig reads and updates the runtime tuning of a session.
// GET /admin/config   current values
// POST /admin/config  partial update from a JSON body
func HandleAdminConfig(s *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := s.Tuning()
		switch r.Method {
		case http.MethodGet:
			cur := adminConfig{
				CadenceIdleMs:    intp(t.CadenceMs["idle"]),
				CadenceMovingMs:  intp(t.CadenceMs["moving"]),
				CadenceRestingMs: intp(t.CadenceMs["resting"]),
				CadenceHiddenMs:  intp(t.CadenceMs["hidden"]),
				DebounceMs:       intp(t.DebounceMs),
				PlanLock:         floatp(t.Movement.PlanLock),
				ArrivalLock:      floatp(t.Movement.ArrivalLock),
				SnapDistance:     floatp(t.Movement.SnapDistance),
				CatchUpLimit:     intp(t.Movement.CatchUpLimit),
				RegressTolerance: floatp(t.Movement.RegressTolerance),
			}
			writeJSON(w, http.StatusOK, cur)
		case http.MethodPost:
			var body adminConfig
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if !body.valid() {
				http.Error(w, "values must be positive", http.StatusBadRequest)
				return
			}
			setInt := func(key string, v *int) {
				if v != nil {
					t.CadenceMs[key] = *v
				}
			}
			setInt("idle", body.CadenceIdleMs)
			setInt("moving", body.CadenceMovingMs)
			setInt("resting", body.CadenceRestingMs)
			setInt("hidden", body.CadenceHiddenMs)
			if body.DebounceMs != nil {
				t.DebounceMs = *body.DebounceMs
			}
			if body.PlanLock != nil {
				t.Movement.PlanLock = *body.PlanLock
			}
			if body.ArrivalLock != nil {
				t.Movement.ArrivalLock = *body.ArrivalLock
			}
			if body.SnapDistance != nil {
				t.Movement.SnapDistance = *body.SnapDistance
			}
			if body.CatchUpLimit != nil {
				t.Movement.CatchUpLimit = *body.CatchUpLimit
			}
			if body.RegressTolerance != nil {
				t.Movement.RegressTolerance = *body.RegressTolerance
			}
			s.SetTuning(t)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			Log.Infof("config updated: cadence=%v debounce=%dms planLock=%.2f arrivalLock=%.2f snap=%.2f catchUp=%d",
				t.CadenceMs, t.DebounceMs, t.Movement.PlanLock, t.Movement.ArrivalLock, t.Movement.SnapDistance, t.Movement.CatchUpLimit)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (c adminConfig) valid() bool {
	for _, v := range []*int{c.CadenceIdleMs, c.CadenceMovingMs, c.CadenceRestingMs, c.CadenceHiddenMs, c.DebounceMs, c.CatchUpLimit} {
		if v != nil && *v <= 0 {
			return false
		}
	}
	for _, v := range []*float64{c.PlanLock, c.ArrivalLock, c.SnapDistance} {
		if v != nil && *v < 0 {
			return false
		}
	}
	return c.RegressTolerance == nil || *c.RegressTolerance >= 0
}

// HandleMetrics serves the client counters.
// GET /metrics
func HandleMetrics(s *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"session":   s.api.SessionID(),
			"activity":  s.Activity().String(),
			"next_poll": s.NextPoll().Milliseconds(),
			"metrics":   s.Metrics().Snapshot(),
		})
	}
}

// HandleDiag serves the diagnostic overlay and the recent toasts.
// GET /diag
func HandleDiag(s *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		diag, shown := s.Notifier().Diag()
		writeJSON(w, http.StatusOK, map[string]any{
			"diag":   diag,
			"shown":  shown,
			"toasts": s.Notifier().Recent(),
			"view":   s.View(),
		})
	}
}

// HandleHealthz answers 200 once the session is running.
func HandleHealthz(s *Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Closed() {
			http.Error(w, "closed", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}
}

// HandleTile proxies tile images for viewers through the cache.
// GET /static/tiles/{name}
func HandleTile(c *TileCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := c.Get(r.Context(), r.URL.RequestURI())
		switch {
		case errors.Is(err, ErrNotCacheable):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(body))
		_, _ = w.Write(body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
