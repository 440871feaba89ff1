package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

// Advance moves time forward, running due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// gameServer is a scriptable stand-in for the game server. Handlers are
// keyed by path; every request is counted and its session header kept.
type gameServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	bodies   map[string][]map[string]any
	sessions map[string]bool
}

func newGameServer(t *testing.T) *gameServer {
	t.Helper()
	g := &gameServer{
		t:        t,
		handlers: map[string]http.HandlerFunc{},
		hits:     map[string]int{},
		bodies:   map[string][]map[string]any{},
		sessions: map[string]bool{},
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gameServer) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	g.mu.Lock()
	g.hits[r.URL.Path]++
	g.bodies[r.URL.Path] = append(g.bodies[r.URL.Path], body)
	g.sessions[r.Header.Get(SessionHeader)] = true
	h := g.handlers[r.URL.Path]
	g.mu.Unlock()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

// reply registers a fixed JSON answer.
func (g *gameServer) reply(path string, status int, v any) {
	g.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	})
}

func (g *gameServer) handle(path string, h http.HandlerFunc) {
	g.mu.Lock()
	g.handlers[path] = h
	g.mu.Unlock()
}

func (g *gameServer) count(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits[path]
}

func (g *gameServer) lastBody(path string) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.bodies[path]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

func (g *gameServer) api() *API {
	return NewAPI(g.srv.URL, DefaultEndpoints(), g.srv.Client(), nil)
}
