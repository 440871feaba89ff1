package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"pkworld/movement"
)

const (
	codeNetwork  = "network_error"
	codeBadJSON  = "bad_json"
	codeNoRoute  = "no_endpoint"
	maxReplySize = 8 << 20

	// SessionHeader carries the client session id on every request.
	SessionHeader = "X-Client-Session"
)

// Reply is the shape shared by every server answer. Failures of any kind
// end up here with OK=false instead of being returned as errors.
type Reply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
	HTTP    int    `json:"-"`

	path string
}

func (r *Reply) reply() *Reply { return r }

// Err returns nil for a successful reply and an *APIError otherwise.
func (r *Reply) Err() error {
	if r.OK {
		return nil
	}
	return &APIError{Path: r.path, Status: r.HTTP, Code: r.Error, Detail: r.Detail, Message: r.Message}
}

// Text returns the message, falling back to the error code and then def.
func (r *Reply) Text(def string) string {
	if r.Message != "" {
		return r.Message
	}
	if !r.OK && r.Error != "" {
		return r.Error
	}
	return def
}

type replier interface{ reply() *Reply }

// API is a thin JSON client for the game server.
type API struct {
	base      string
	ep        Endpoints
	hc        *http.Client
	sessionID string
	metrics   *Metrics
}

// NewAPI builds a client for the server at base. A nil http client gets
// a default one with a 15s timeout.
func NewAPI(base string, ep Endpoints, hc *http.Client, m *Metrics) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if m == nil {
		m = &Metrics{}
	}
	return &API{
		base:      strings.TrimRight(base, "/"),
		ep:        ep,
		hc:        hc,
		sessionID: uuid.NewString(),
		metrics:   m,
	}
}

// SessionID identifies this client to the server.
func (a *API) SessionID() string { return a.sessionID }

// Endpoints returns the configured routes.
func (a *API) Endpoints() Endpoints { return a.ep }

// URL resolves a server path against the base URL.
func (a *API) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return a.base + path
}

func (a *API) do(ctx context.Context, method, path string, body any, out replier) {
	r := out.reply()
	r.path = path
	if path == "" {
		r.OK, r.Error = false, codeNoRoute
		return
	}
	a.metrics.IncRequest()

	var rd io.Reader
	if method == http.MethodPost {
		if body == nil {
			body = struct{}{}
		}
		b, err := json.Marshal(body)
		if err != nil {
			r.OK, r.Error, r.Detail = false, codeNetwork, err.Error()
			return
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.URL(path), rd)
	if err != nil {
		r.OK, r.Error, r.Detail = false, codeNetwork, err.Error()
		return
	}
	req.Header.Set(SessionHeader, a.sessionID)
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		a.metrics.IncNetworkError()
		Log.Debugf("api %s %s: %v", method, path, err)
		r.OK, r.Error, r.Detail = false, codeNetwork, err.Error()
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		a.metrics.IncNetworkError()
		r.OK, r.Error, r.Detail = false, codeNetwork, err.Error()
		r.HTTP = resp.StatusCode
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		a.metrics.IncBadJSON()
		r = out.reply()
		r.OK, r.Error, r.Detail = false, codeBadJSON, err.Error()
	}
	r = out.reply()
	r.path = path
	r.HTTP = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.metrics.IncHTTPError()
		r.OK = false
	}
}

func (a *API) post(ctx context.Context, path string, body any, out replier) {
	a.do(ctx, http.MethodPost, path, body, out)
}

func (a *API) get(ctx context.Context, path string, out replier) {
	a.do(ctx, http.MethodGet, path, nil, out)
}

// State fetches a world snapshot.
func (a *API) State(ctx context.Context) Snapshot {
	var s Snapshot
	a.post(ctx, a.ep.State, nil, &s)
	return s
}

// StateGet is the GET fallback for State.
func (a *API) StateGet(ctx context.Context) Snapshot {
	var s Snapshot
	a.get(ctx, a.ep.StateGet, &s)
	return s
}

// PlanReply answers set_dest.
type PlanReply struct {
	Reply
	Steps int               `json:"steps,omitempty"`
	Plan  *movement.PlanMsg `json:"plan,omitempty"`
}

// SetDest asks the server to route the hero to c.
func (a *API) SetDest(ctx context.Context, c movement.Cell) PlanReply {
	var r PlanReply
	a.post(ctx, a.ep.SetDest, c, &r)
	return r
}

// Stop halts the hero.
func (a *API) Stop(ctx context.Context) Reply {
	var r Reply
	a.post(ctx, a.ep.Stop, nil, &r)
	return r
}

// CampStart deploys a temporary camp.
func (a *API) CampStart(ctx context.Context) Reply {
	var r Reply
	a.post(ctx, a.ep.CampStart, nil, &r)
	return r
}

// CampLeave packs the camp up.
func (a *API) CampLeave(ctx context.Context) Reply {
	var r Reply
	a.post(ctx, a.ep.CampLeave, nil, &r)
	return r
}

// TileVersionsReply maps tile file names to their versions.
type TileVersionsReply struct {
	Reply
	Versions map[string]int64 `json:"versions"`
}

func (a *API) TileVersions(ctx context.Context) TileVersionsReply {
	var r TileVersionsReply
	a.get(ctx, a.ep.TileVersions, &r)
	return r
}

// PatchReply carries a view patch centered on a cell.
type PatchReply struct {
	Reply
	Patch *Patch `json:"patch"`
}

func (a *API) Patch(ctx context.Context, c movement.Cell) PatchReply {
	var r PatchReply
	path := a.ep.PatchView
	if path != "" {
		path = fmt.Sprintf("%s?cx=%d&cy=%d", path, c.X, c.Y)
	}
	a.get(ctx, path, &r)
	return r
}

// GatherRequest is sent with every gather call.
type GatherRequest struct {
	Mode    string `json:"mode,omitempty"`
	Tile    string `json:"tile,omitempty"`
	Weather string `json:"weather,omitempty"`
	Climate string `json:"climate,omitempty"`
}

// FoundItem is a single gathered item.
type FoundItem struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Qty      int     `json:"qty"`
	WeightKg float64 `json:"weight_kg"`
	Icon     string  `json:"icon,omitempty"`
}

// GatherReply answers gather start, stop and tick.
type GatherReply struct {
	Reply
	WindupMs int         `json:"windup_ms,omitempty"`
	TickMs   int         `json:"tick_ms,omitempty"`
	Fatigue  *float64    `json:"fatigue,omitempty"`
	Full     bool        `json:"full,omitempty"`
	Items    []FoundItem `json:"items,omitempty"`
	Found    *FoundItem  `json:"found,omitempty"`
	Mode     string      `json:"mode,omitempty"`
}

// Item returns the first item found by a tick, if any.
func (g *GatherReply) Item() *FoundItem {
	if len(g.Items) > 0 {
		return &g.Items[0]
	}
	if g.Found != nil && g.Found.Name != "" {
		return g.Found
	}
	return nil
}

func (a *API) GatherStart(ctx context.Context, req GatherRequest) GatherReply {
	var r GatherReply
	a.post(ctx, a.ep.GatherStart, req, &r)
	return r
}

func (a *API) GatherStop(ctx context.Context, req GatherRequest) GatherReply {
	var r GatherReply
	a.post(ctx, a.ep.GatherStop, req, &r)
	return r
}

func (a *API) GatherTick(ctx context.Context, req GatherRequest) GatherReply {
	var r GatherReply
	a.post(ctx, a.ep.GatherTick, req, &r)
	return r
}

// CombatReply answers the combat endpoints.
type CombatReply struct {
	Reply
	Combat   *CombatState `json:"combat,omitempty"`
	Monsters []Monster    `json:"monsters,omitempty"`
	Rewards  *Rewards     `json:"rewards,omitempty"`
	Escaped  bool         `json:"escaped,omitempty"`
}

func (a *API) CombatState(ctx context.Context) CombatReply {
	var r CombatReply
	a.get(ctx, a.ep.CombatState, &r)
	return r
}

func (a *API) Engage(ctx context.Context, monsterID int64) CombatReply {
	var r CombatReply
	a.post(ctx, a.ep.CombatEngage, map[string]int64{"monster_id": monsterID}, &r)
	return r
}

func (a *API) Attack(ctx context.Context) CombatReply {
	var r CombatReply
	a.post(ctx, a.ep.CombatAttack, nil, &r)
	return r
}

func (a *API) Flee(ctx context.Context) CombatReply {
	var r CombatReply
	a.post(ctx, a.ep.CombatFlee, nil, &r)
	return r
}

// InventoryReply answers list and drop.
type InventoryReply struct {
	Reply
	Items  []InvItem `json:"items,omitempty"`
	Totals InvTotals `json:"totals"`
	Counts InvCounts `json:"counts"`
}

func (a *API) Inventory(ctx context.Context) InventoryReply {
	var r InventoryReply
	a.get(ctx, a.ep.InvList, &r)
	return r
}

func (a *API) Drop(ctx context.Context, invID int64, qty int) InventoryReply {
	var r InventoryReply
	a.post(ctx, a.ep.InvDrop, map[string]any{"inv_id": invID, "qty": qty}, &r)
	return r
}

// CraftReply answers the craft endpoints.
type CraftReply struct {
	Reply
	Categories  map[string][]Recipe `json:"categories,omitempty"`
	Recipe      *Recipe             `json:"recipe,omitempty"`
	CraftStatus *CraftStatus        `json:"craft_status,omitempty"`
	Result      *CraftResult        `json:"result,omitempty"`
}

func (a *API) CraftRecipes(ctx context.Context) CraftReply {
	var r CraftReply
	a.get(ctx, a.ep.CraftRecipes, &r)
	return r
}

func (a *API) CraftRecipe(ctx context.Context, key string) CraftReply {
	var r CraftReply
	path := a.ep.CraftRecipe
	if path != "" {
		path += url.PathEscape(key)
	}
	a.get(ctx, path, &r)
	return r
}

func (a *API) CraftStart(ctx context.Context, key string) CraftReply {
	var r CraftReply
	a.post(ctx, a.ep.CraftStart, map[string]string{"recipe_key": key}, &r)
	return r
}

func (a *API) CraftComplete(ctx context.Context) CraftReply {
	var r CraftReply
	a.post(ctx, a.ep.CraftComplete, nil, &r)
	return r
}

func (a *API) CraftCancel(ctx context.Context) CraftReply {
	var r CraftReply
	a.post(ctx, a.ep.CraftCancel, nil, &r)
	return r
}

func (a *API) CraftStatus(ctx context.Context) CraftReply {
	var r CraftReply
	a.get(ctx, a.ep.CraftStatus, &r)
	return r
}
