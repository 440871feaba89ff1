package worldsim

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pkworld/movement"
)

// SessionHeader identifies the player on every request.
const SessionHeader = "X-Client-Session"

// Server exposes a World over the game server's HTTP routes.
type Server struct {
	world *World

	mu     sync.Mutex
	images map[string][]byte
}

// NewServer wraps w.
func NewServer(w *World) *Server {
	return &Server{world: w, images: map[string][]byte{}}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/world", func(r chi.Router) {
		r.Get("/tile_versions", s.handleTileVersions)
		r.Get("/patch", s.handlePatch)

		r.Group(func(r chi.Router) {
			r.Use(s.requirePlayer)
			r.Post("/state", s.handleState)
			r.Get("/state", s.handleState)
			r.Post("/set_dest", s.handleSetDest)
			r.Post("/stop", s.handleStop)
			r.Post("/camp/start", s.handleCampStart)
			r.Post("/camp/leave", s.handleCampLeave)
			r.Post("/gather/start", s.handleGatherStart)
			r.Post("/gather/stop", s.handleGatherStop)
			r.Post("/gather/tick", s.handleGatherTick)
		})
	})
	r.Route("/inv/api", func(r chi.Router) {
		r.Use(s.requirePlayer)
		r.Get("/list", s.handleInvList)
		r.Post("/drop", s.handleInvDrop)
	})
	r.Get("/static/tiles/{name}", s.handleTile)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/config", s.handleAdminConfig)
		r.Post("/config", s.handleAdminConfig)
		r.Post("/tiles/bump", s.handleBumpTiles)
		r.Delete("/players/{id}", s.handleKick)
	})
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		Log.Debugf("%s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) requirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		if id == "" {
			respondJSON(w, http.StatusUnauthorized, Reply{OK: false, Error: "auth_required"})
			return
		}
		s.world.metrics.IncRequest()
		next.ServeHTTP(w, r)
	})
}

func playerOf(r *http.Request) PlayerID { return PlayerID(r.Header.Get(SessionHeader)) }

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		Log.Warnf("encode response: %v", err)
	}
}

// respondReply answers 200 for ok replies and 400 otherwise.
func respondReply(w http.ResponseWriter, ok bool, data any) {
	status := http.StatusOK
	if !ok {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, data)
}

// decode reads an optional JSON body; an empty body leaves v alone.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.world.State(playerOf(r)))
}

func (s *Server) handleSetDest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		X *int `json:"x"`
		Y *int `json:"y"`
	}
	if err := decode(r, &body); err != nil || body.X == nil || body.Y == nil {
		respondJSON(w, http.StatusBadRequest, Reply{OK: false, Message: "x/y required"})
		return
	}
	res := s.world.SetDest(playerOf(r), movement.Cell{X: *body.X, Y: *body.Y})
	respondReply(w, res.OK, res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.world.Stop(playerOf(r)))
}

func (s *Server) handleCampStart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.world.CampStart(playerOf(r)))
}

func (s *Server) handleCampLeave(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.world.CampLeave(playerOf(r)))
}

type gatherBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleGatherStart(w http.ResponseWriter, r *http.Request) {
	var body gatherBody
	_ = decode(r, &body)
	res := s.world.GatherStart(playerOf(r), body.Mode)
	respondReply(w, res.OK, res)
}

func (s *Server) handleGatherStop(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.world.GatherStop(playerOf(r)))
}

func (s *Server) handleGatherTick(w http.ResponseWriter, r *http.Request) {
	res := s.world.GatherTick(playerOf(r))
	respondReply(w, res.OK, res)
}

func (s *Server) handleInvList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.world.Inventory(playerOf(r)))
}

func (s *Server) handleInvDrop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InvID int64 `json:"inv_id"`
		Qty   int   `json:"qty"`
	}
	if err := decode(r, &body); err != nil {
		respondJSON(w, http.StatusBadRequest, Reply{OK: false, Error: "bad_args"})
		return
	}
	res := s.world.Drop(playerOf(r), body.InvID, body.Qty)
	respondReply(w, res.OK, res)
}

func (s *Server) handleTileVersions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "versions": s.world.TileVersions()})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	cx, errX := strconv.Atoi(r.URL.Query().Get("cx"))
	cy, errY := strconv.Atoi(r.URL.Query().Get("cy"))
	if errX != nil || errY != nil {
		respondJSON(w, http.StatusBadRequest, Reply{OK: false, Message: "cx/cy required"})
		return
	}
	respondJSON(w, http.StatusOK, s.world.PatchAt(movement.Cell{X: cx, Y: cy}))
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tile, idx, scale, err := ParseTileName(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	img, ok := s.images[name]
	s.mu.Unlock()
	if !ok {
		img, err = RenderTile(tile, idx, scale)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		s.images[name] = img
		s.mu.Unlock()
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(img)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"players": s.world.Count(),
		"metrics": s.world.metrics.Snapshot(),
	})
}

func (s *Server) handleBumpTiles(w http.ResponseWriter, r *http.Request) {
	v := s.world.BumpTileVersion()
	Log.Infof("tile version bumped to %d", v)
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "version": v})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	id := PlayerID(chi.URLParam(r, "id"))
	s.world.RequestLeave(id)
	respondJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
