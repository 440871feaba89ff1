package worldsim

import (
	"encoding/json"
	"net/http"
)

type adminConfig struct {
	StepT          *float64 `json:"stepT,omitempty"`
	FatiguePerTile *float64 `json:"fatiguePerTile,omitempty"`
	RestPerSec     *float64 `json:"restPerSec,omitempty"`
	BaseMiss       *float64 `json:"baseMiss,omitempty"`
	GatherWindupMs *int     `json:"gatherWindupMs,omitempty"`
	GatherTickMs   *int     `json:"gatherTickMs,omitempty"`
	CapacityKg     *float64 `json:"capacityKg,omitempty"`
}

// handleAdminConfig reads and hot-updates the world rules.
// GET /admin/config   current values
// POST /admin/config  partial update from a JSON body
func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	wd := s.world
	switch r.Method {
	case http.MethodGet:
		wd.mu.Lock()
		c := wd.cfg
		wd.mu.Unlock()
		respondJSON(w, http.StatusOK, adminConfig{
			StepT:          &c.StepT,
			FatiguePerTile: &c.FatiguePerTile,
			RestPerSec:     &c.RestPerSec,
			BaseMiss:       &c.BaseMiss,
			GatherWindupMs: &c.GatherWindupMs,
			GatherTickMs:   &c.GatherTickMs,
			CapacityKg:     &c.CapacityKg,
		})
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.StepT != nil && *body.StepT <= 0 {
			http.Error(w, "stepT must be positive", http.StatusBadRequest)
			return
		}
		wd.mu.Lock()
		if body.StepT != nil {
			wd.cfg.StepT = *body.StepT
		}
		if body.FatiguePerTile != nil {
			wd.cfg.FatiguePerTile = *body.FatiguePerTile
		}
		if body.RestPerSec != nil {
			wd.cfg.RestPerSec = *body.RestPerSec
		}
		if body.BaseMiss != nil {
			wd.cfg.BaseMiss = *body.BaseMiss
		}
		if body.GatherWindupMs != nil {
			wd.cfg.GatherWindupMs = *body.GatherWindupMs
		}
		if body.GatherTickMs != nil {
			wd.cfg.GatherTickMs = *body.GatherTickMs
		}
		if body.CapacityKg != nil {
			wd.cfg.CapacityKg = *body.CapacityKg
			for _, p := range wd.players {
				p.Inv.CapacityKg = *body.CapacityKg
			}
		}
		c := wd.cfg
		wd.mu.Unlock()
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
		Log.Infof("config updated: stepT=%.3f fatigue=%.2f rest=%.2f miss=%.2f windup=%dms tick=%dms capacity=%.1fkg",
			c.StepT, c.FatiguePerTile, c.RestPerSec, c.BaseMiss, c.GatherWindupMs, c.GatherTickMs, c.CapacityKg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
