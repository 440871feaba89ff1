package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	bolt "go.etcd.io/bbolt"
)

// tileServer answers PNG names with their own name as the body and 404s
// everything else.
type tileServer struct {
	srv *httptest.Server

	mu   sync.Mutex
	hits map[string]int
	fail bool
}

func newTileServer(t *testing.T) *tileServer {
	t.Helper()
	ts := &tileServer{hits: map[string]int{}}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.hits[r.URL.Path]++
		fail := ts.fail
		ts.mu.Unlock()
		if fail {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		if !strings.HasSuffix(r.URL.Path, ".png") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tileServer) count(path string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.hits[path]
}

func (ts *tileServer) setFail(v bool) {
	ts.mu.Lock()
	ts.fail = v
	ts.mu.Unlock()
}

func openTestCache(t *testing.T, ts *tileServer, m *Metrics) *TileCache {
	t.Helper()
	api := NewAPI(ts.srv.URL, DefaultEndpoints(), ts.srv.Client(), m)
	c, err := OpenTileCache(filepath.Join(t.TempDir(), "tiles.db"), api, m, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTileCacheStaleWhileRevalidate(t *testing.T) {
	ts := newTileServer(t)
	m := &Metrics{}
	c := openTestCache(t, ts, m)
	ctx := context.Background()
	const path = "/static/tiles/grass_0@1x.png?v=3"

	body, err := c.Get(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "/static/tiles/grass_0@1x.png" {
		t.Fatalf("body = %q", body)
	}
	if m.TileMisses != 1 || m.TileHits != 0 {
		t.Fatalf("misses=%d hits=%d", m.TileMisses, m.TileHits)
	}

	// the server goes away; the cached copy keeps being served
	ts.setFail(true)
	body, err = c.Get(ctx, path)
	if err != nil || !bytes.Contains(body, []byte("grass_0")) {
		t.Fatalf("cached get = %q, %v", body, err)
	}
	c.Wait()
	if m.TileHits != 1 || m.TileRevalidated != 0 {
		t.Fatalf("hits=%d revalidated=%d", m.TileHits, m.TileRevalidated)
	}

	ts.setFail(false)
	if _, err := c.Get(ctx, path); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	if m.TileRevalidated != 1 {
		t.Fatalf("revalidated = %d", m.TileRevalidated)
	}
	if n := ts.count("/static/tiles/grass_0@1x.png"); n != 3 {
		t.Fatalf("server hits = %d, want 3", n)
	}
}

func TestTileCacheRefusesOtherPaths(t *testing.T) {
	ts := newTileServer(t)
	c := openTestCache(t, ts, nil)
	if _, err := c.Get(context.Background(), "/world/state"); !errors.Is(err, ErrNotCacheable) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Get(context.Background(), "/static/tiles/grass_0.avif"); err == nil {
		t.Fatal("missing image was cached")
	}
}

func TestTileCacheDropsOldGenerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte("pk-static-v1"))
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	ts := newTileServer(t)
	c, err := OpenTileCache(path, NewAPI(ts.srv.URL, DefaultEndpoints(), ts.srv.Client(), nil), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	var names []string
	_ = c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if len(names) != 1 || names[0] != TileCacheName {
		t.Fatalf("buckets = %v", names)
	}
}

func TestResolveTilesFallsBackToPNG(t *testing.T) {
	ts := newTileServer(t)
	c := openTestCache(t, ts, nil)
	set := NewTileSet(nil, false)
	refs := []TileRef{{Tile: "grass", Idx: 0}, {Tile: "forest", Idx: 2}}

	if n := c.ResolveTiles(context.Background(), set, refs); n != 2 {
		t.Fatalf("loaded = %d, want 2", n)
	}
	name, ok := set.Resolved("grass", 0)
	if !ok || name != "grass_0@1x.png" {
		t.Fatalf("resolved = %q %v", name, ok)
	}
	for _, bad := range []string{"grass_0@1x.avif", "grass_0.avif", "forest_2@2x.webp"} {
		if !set.IsBad(bad) {
			t.Errorf("%s not marked bad", bad)
		}
	}
	if set.ChooseName("grass", 0) != "grass_0@1x.png" {
		t.Fatalf("choose = %s", set.ChooseName("grass", 0))
	}

	// resolved and cached refs are skipped
	if n := c.ResolveTiles(context.Background(), set, refs); n != 0 {
		t.Fatalf("second pass loaded %d", n)
	}
}
