package worldsim

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkworld/movement"
)

func newTestServer(t *testing.T) (*httptest.Server, *World) {
	t.Helper()
	w, _ := newTestWorld(t, nil)
	srv := httptest.NewServer(NewServer(w).Routes())
	t.Cleanup(srv.Close)
	return srv, w
}

func call(t *testing.T, srv *httptest.Server, method, path, session, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRoutesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t)
	var r Reply
	if code := call(t, srv, http.MethodPost, "/world/state", "", "{}", &r); code != http.StatusUnauthorized || r.Error != "auth_required" {
		t.Fatalf("state without session = %d %+v", code, r)
	}
}

func TestStateRoute(t *testing.T) {
	srv, w := newTestServer(t)
	var st State
	if code := call(t, srv, http.MethodPost, "/world/state", "s1", "{}", &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !st.OK || st.Tile != "town" || st.Patch == nil || st.Patch.W != 31 || st.Now == 0 {
		t.Fatalf("state = %+v", st)
	}
	if w.Count() != 1 {
		t.Fatalf("players = %d, want 1", w.Count())
	}
}

func TestSetDestRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	var bad Reply
	if code := call(t, srv, http.MethodPost, "/world/set_dest", "s1", `{"x":3}`, &bad); code != http.StatusBadRequest || bad.OK {
		t.Fatalf("set_dest without y = %d %+v", code, bad)
	}

	var res DestReply
	if code := call(t, srv, http.MethodPost, "/world/set_dest", "s1", `{"x":3,"y":0}`, &res); code != http.StatusOK {
		t.Fatalf("set_dest status = %d", code)
	}
	if res.Plan == nil || res.Plan.Dirs != "RRR" {
		t.Fatalf("set_dest = %+v", res)
	}
}

func TestInventoryRoutes(t *testing.T) {
	srv, w := newTestServer(t)
	if err := w.Give("s1", "res_herb", 2); err != nil {
		t.Fatal(err)
	}
	var list InventoryReply
	call(t, srv, http.MethodGet, "/inv/api/list", "s1", "", &list)
	if len(list.Items) != 1 || list.Items[0].ItemKey != "res_herb" || list.Counts.Pieces != 2 {
		t.Fatalf("list = %+v", list)
	}

	var miss InventoryReply
	if code := call(t, srv, http.MethodPost, "/inv/api/drop", "s1", `{"inv_id":99,"qty":1}`, &miss); code != http.StatusBadRequest || miss.Error != "not_found" {
		t.Fatalf("drop unknown = %d %+v", code, miss)
	}
	var ok InventoryReply
	if code := call(t, srv, http.MethodPost, "/inv/api/drop", "s1", `{"inv_id":1,"qty":1}`, &ok); code != http.StatusOK || !ok.OK {
		t.Fatalf("drop = %d %+v", code, ok)
	}
}

func TestTileRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/static/tiles/grass_1@2x.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("png tile = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = srv.Client().Get(srv.URL + "/static/tiles/grass_1@2x.avif")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("avif tile = %d, want 404", resp.StatusCode)
	}

	var vers struct {
		OK       bool             `json:"ok"`
		Versions map[string]int64 `json:"versions"`
	}
	call(t, srv, http.MethodGet, "/world/tile_versions", "", "", &vers)
	if !vers.OK || vers.Versions["grass_1@2x.png"] == 0 {
		t.Fatalf("tile_versions = %+v", vers.OK)
	}
}

func TestPatchRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	var pr PatchReply
	if code := call(t, srv, http.MethodGet, "/world/patch?cx=5&cy=5", "", "", &pr); code != http.StatusOK || pr.Patch == nil {
		t.Fatalf("patch = %d %+v", code, pr)
	}
	if pr.Patch.Center.X != 5 || pr.Patch.Center.Y != 5 {
		t.Fatalf("centre = %+v", pr.Patch.Center)
	}
	var bad Reply
	if code := call(t, srv, http.MethodGet, "/world/patch?cx=x", "", "", &bad); code != http.StatusBadRequest {
		t.Fatalf("bad patch args = %d", code)
	}
}

func TestAdminConfigRoute(t *testing.T) {
	srv, w := newTestServer(t)
	var ok map[string]any
	if code := call(t, srv, http.MethodPost, "/admin/config", "", `{"stepT":0.25,"capacityKg":12}`, &ok); code != http.StatusOK {
		t.Fatalf("post = %d", code)
	}
	var got adminConfig
	call(t, srv, http.MethodGet, "/admin/config", "", "", &got)
	if got.StepT == nil || *got.StepT != 0.25 || *got.CapacityKg != 12 || *got.GatherTickMs != 5000 {
		t.Fatalf("config = %+v", got)
	}
	if res := w.SetDest("p", movement.Cell{X: 3, Y: 0}); res.Plan == nil || res.Plan.StepT != 0.25 {
		t.Fatalf("set_dest after update = %+v", res)
	}

	resp, err := srv.Client().Post(srv.URL+"/admin/config", "application/json", strings.NewReader(`{"stepT":0}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("stepT 0 = %d, want 400", resp.StatusCode)
	}
}

func TestKickRoute(t *testing.T) {
	srv, w := newTestServer(t)
	w.State("s1")
	var r map[string]any
	if code := call(t, srv, http.MethodDelete, "/admin/players/s1", "", "", &r); code != http.StatusAccepted {
		t.Fatalf("kick = %d", code)
	}
	w.Step()
	if w.Count() != 0 {
		t.Fatal("kicked player still present")
	}
}
