package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pkworld/movement"
)

// Commander is what a viewer may ask the session to do.
type Commander interface {
	SetDestination(ctx context.Context, c movement.Cell) error
	Stop(ctx context.Context) error
	ToggleCamp(ctx context.Context) error
	ToggleGather(ctx context.Context) error
	SetHidden(hidden bool)
	RefreshNow()
}

// viewerMsg is an inbound viewer command.
// Examples: {"type":"dest","x":4,"y":7}, {"type":"hidden","hidden":true}
type viewerMsg struct {
	Type   string `json:"type"`
	X      *int   `json:"x,omitempty"`
	Y      *int   `json:"y,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

type outFrame struct {
	Type  string `json:"type"`
	View  *View  `json:"view,omitempty"`
	Patch *Patch `json:"patch,omitempty"`
	Sig   string `json:"sig,omitempty"`
	Toast *Toast `json:"toast,omitempty"`
}

// ViewerConn is one connected browser viewer.
type ViewerConn struct {
	ID   string
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newViewerConn(ws *websocket.Conn) *ViewerConn {
	return &ViewerConn{ID: uuid.NewString(), ws: ws, send: make(chan []byte, 64)}
}

// Enqueue queues a message without blocking; a full queue drops it, as
// does a closed connection.
func (c *ViewerConn) Enqueue(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *ViewerConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.ws.Close()
}

func (c *ViewerConn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *ViewerConn) readPump(h *Hub) {
	defer h.leave(c)
	c.ws.SetReadLimit(1 << 20)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		var m viewerMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			continue
		}
		h.dispatch(m)
	}
}

// Hub fans session views out to websocket viewers and turns their
// messages into session commands.
type Hub struct {
	cmd      Commander
	gap      time.Duration
	timeout  time.Duration
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[string]*ViewerConn
	lastSent time.Time
	patch    []byte
	patchSig string
	closed   bool
}

// NewHub builds a hub sending at most fps frames a second.
func NewHub(cmd Commander, fps int) *Hub {
	if fps <= 0 {
		fps = 20
	}
	return &Hub{
		cmd:     cmd,
		gap:     time.Second / time.Duration(fps),
		timeout: 15 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local viewer only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[string]*ViewerConn{},
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades a viewer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("viewer upgrade: %v", err)
		return
	}
	c := newViewerConn(ws)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	h.clients[c.ID] = c
	if h.patch != nil {
		c.Enqueue(h.patch)
	}
	h.mu.Unlock()
	Log.Infof("viewer %s connected from %s", c.ID, r.RemoteAddr)

	go c.writePump()
	go c.readPump(h)
}

func (h *Hub) leave(c *ViewerConn) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.close()
	Log.Infof("viewer %s left", c.ID)
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.Enqueue(b)
	}
}

// Publish is a Session subscriber. Patches go out whenever they change;
// frames are throttled.
func (h *Hub) Publish(v View) {
	h.mu.Lock()
	var patchMsg []byte
	if v.Patch != nil && v.PatchSig != h.patchSig {
		b, err := json.Marshal(outFrame{Type: "patch", Patch: v.Patch, Sig: v.PatchSig})
		if err == nil {
			h.patch, h.patchSig = b, v.PatchSig
			patchMsg = b
		}
	}
	now := time.Now()
	sendFrame := patchMsg != nil || now.Sub(h.lastSent) >= h.gap
	if sendFrame {
		h.lastSent = now
	}
	h.mu.Unlock()

	if patchMsg != nil {
		h.broadcast(patchMsg)
	}
	if !sendFrame {
		return
	}
	b, err := json.Marshal(outFrame{Type: "frame", View: &v, Sig: v.PatchSig})
	if err != nil {
		Log.Warnf("viewer frame: %v", err)
		return
	}
	h.broadcast(b)
}

// Toast forwards a notice to viewers.
func (h *Hub) Toast(t Toast) {
	b, err := json.Marshal(outFrame{Type: "toast", Toast: &t})
	if err != nil {
		return
	}
	h.broadcast(b)
}

func (h *Hub) dispatch(m viewerMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	var err error
	switch strings.ToLower(m.Type) {
	case "dest":
		if m.X == nil || m.Y == nil {
			return
		}
		err = h.cmd.SetDestination(ctx, movement.Cell{X: *m.X, Y: *m.Y})
	case "stop":
		err = h.cmd.Stop(ctx)
	case "camp":
		err = h.cmd.ToggleCamp(ctx)
	case "gather":
		err = h.cmd.ToggleGather(ctx)
	case "hidden":
		h.cmd.SetHidden(m.Hidden)
	case "refresh":
		h.cmd.RefreshNow()
	default:
		return
	}
	if err != nil {
		Log.Debugf("viewer %s: %v", m.Type, err)
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*ViewerConn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[string]*ViewerConn{}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
