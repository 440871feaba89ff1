package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pkworld/movement"
)

type recordingCommander struct {
	mu    sync.Mutex
	calls []string
	dest  movement.Cell
	seen  chan string
}

func newRecordingCommander() *recordingCommander {
	return &recordingCommander{seen: make(chan string, 16)}
}

func (c *recordingCommander) record(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
	c.seen <- name
}

func (c *recordingCommander) SetDestination(_ context.Context, cell movement.Cell) error {
	c.mu.Lock()
	c.dest = cell
	c.mu.Unlock()
	c.record("dest")
	return nil
}
func (c *recordingCommander) Stop(context.Context) error         { c.record("stop"); return nil }
func (c *recordingCommander) ToggleCamp(context.Context) error   { c.record("camp"); return nil }
func (c *recordingCommander) ToggleGather(context.Context) error { c.record("gather"); return nil }
func (c *recordingCommander) SetHidden(h bool) {
	if h {
		c.record("hidden")
	} else {
		c.record("visible")
	}
}
func (c *recordingCommander) RefreshNow() { c.record("refresh") }

func intRef(v int) *int { return &v }

func TestHubDispatch(t *testing.T) {
	cmd := newRecordingCommander()
	h := NewHub(cmd, 20)

	msgs := []viewerMsg{
		{Type: "dest", X: intRef(4), Y: intRef(-7)},
		{Type: "dest", X: intRef(1)},
		{Type: "STOP"},
		{Type: "camp"},
		{Type: "gather"},
		{Type: "hidden", Hidden: true},
		{Type: "hidden"},
		{Type: "refresh"},
		{Type: "dance"},
	}
	for _, m := range msgs {
		h.dispatch(m)
	}
	want := []string{"dest", "stop", "camp", "gather", "hidden", "visible", "refresh"}
	if strings.Join(cmd.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v", cmd.calls)
	}
	if cmd.dest != (movement.Cell{X: 4, Y: -7}) {
		t.Fatalf("dest = %v", cmd.dest)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestHubRoundTrip(t *testing.T) {
	cmd := newRecordingCommander()
	h := NewHub(cmd, 20)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	deadline := time.Now().Add(5 * time.Second)
	for h.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p := &Patch{OX: 0, OY: 0, W: 1, H: 1, Tiles: [][]string{{"grass"}}}
	h.Publish(View{Patch: p, PatchSig: p.Signature(), Activity: "idle"})
	if m := readFrame(t, ws); m["type"] != "patch" || m["sig"] != p.Signature() {
		t.Fatalf("first message = %v", m)
	}
	m := readFrame(t, ws)
	if m["type"] != "frame" {
		t.Fatalf("second message = %v", m)
	}
	view := m["view"].(map[string]any)
	if view["activity"] != "idle" {
		t.Fatalf("view = %v", view)
	}

	h.Toast(Toast{Level: LevelWarn, Text: "careful"})
	if m := readFrame(t, ws); m["type"] != "toast" || m["toast"].(map[string]any)["text"] != "careful" {
		t.Fatalf("toast message = %v", m)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"dest","x":2,"y":3}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case name := <-cmd.seen:
		if name != "dest" {
			t.Fatalf("command = %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command not dispatched")
	}
	cmd.mu.Lock()
	dest := cmd.dest
	cmd.mu.Unlock()
	if dest != (movement.Cell{X: 2, Y: 3}) {
		t.Fatalf("dest = %v", dest)
	}
}

func TestHubCloseDropsLateMessages(t *testing.T) {
	h := NewHub(newRecordingCommander(), 20)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p := &Patch{W: 1, H: 1, Tiles: [][]string{{"grass"}}}
	h.Publish(View{Patch: p, PatchSig: p.Signature()})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	if m := readFrame(t, ws); m["type"] != "patch" {
		t.Fatalf("late joiner got %v, want the cached patch", m)
	}

	h.mu.Lock()
	var conns []*ViewerConn
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	if len(conns) != 1 {
		t.Fatalf("clients = %d", len(conns))
	}
	h.Close()
	conns[0].Enqueue([]byte(`{"type":"frame"}`))
	conns[0].close()
	if h.Count() != 0 {
		t.Fatalf("count after close = %d", h.Count())
	}
}
