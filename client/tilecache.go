package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/remeh/sizedwaitgroup"
	"github.com/vmihailenco/msgpack"
)

// TileCacheName is the current cache generation. Buckets with any other
// name are dropped on open.
const TileCacheName = "pk-static-v2"

var tileAssetRE = regexp.MustCompile(`/static/tiles/`)

// ErrNotCacheable is returned for paths outside the tile asset tree.
var ErrNotCacheable = errors.New("path is not a tile asset")

type cachedTile struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	StoredAt    int64  `json:"stored_at"`
}

func packTile(t cachedTile) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseJSONTag(true)
	err := enc.Encode(t)
	return buf.Bytes(), err
}

func unpackTile(b []byte) (cachedTile, error) {
	var t cachedTile
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseJSONTag(true)
	err := dec.Decode(&t)
	return t, err
}

// TileCache serves tile images stale-while-revalidate from a bolt file.
type TileCache struct {
	db      *bolt.DB
	bucket  []byte
	api     *API
	metrics *Metrics
	clock   Clock
	workers int

	bg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// OpenTileCache opens (or creates) the cache file at path.
func OpenTileCache(path string, api *API, m *Metrics, clock Clock) (*TileCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open tile cache %s: %w", path, err)
	}
	bucket := []byte(TileCacheName)
	err = db.Update(func(tx *bolt.Tx) error {
		var stale [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if !bytes.Equal(name, bucket) {
				stale = append(stale, append([]byte(nil), name...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, name := range stale {
			Log.Infof("tile cache: dropping old generation %s", name)
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init tile cache: %w", err)
	}
	if m == nil {
		m = &Metrics{}
	}
	if clock == nil {
		clock = RealClock()
	}
	return &TileCache{db: db, bucket: bucket, api: api, metrics: m, clock: clock, workers: 4}, nil
}

// Cacheable reports whether path is served through the cache.
func Cacheable(path string) bool { return tileAssetRE.MatchString(path) }

func (c *TileCache) lookup(path string) (cachedTile, bool) {
	var out cachedTile
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(path))
		if raw == nil {
			return nil
		}
		t, err := unpackTile(raw)
		if err != nil {
			Log.Warnf("tile cache: corrupt entry %s: %v", path, err)
			return nil
		}
		out, found = t, true
		return nil
	})
	return out, found
}

func (c *TileCache) store(t cachedTile) error {
	raw, err := packTile(t)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.Path), raw)
	})
}

// Has reports whether path has a cached copy.
func (c *TileCache) Has(path string) bool {
	_, ok := c.lookup(path)
	return ok
}

func (c *TileCache) fetch(ctx context.Context, path string) (cachedTile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.URL(path), nil)
	if err != nil {
		return cachedTile{}, err
	}
	req.Header.Set(SessionHeader, c.api.SessionID())
	c.metrics.IncRequest()
	resp, err := c.api.hc.Do(req)
	if err != nil {
		c.metrics.IncNetworkError()
		return cachedTile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.metrics.IncHTTPError()
		return cachedTile{}, fmt.Errorf("fetch %s: http %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return cachedTile{}, err
	}
	t := cachedTile{
		Path:        path,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		StoredAt:    c.clock.Now().Unix(),
	}
	if err := c.store(t); err != nil {
		Log.Warnf("tile cache: store %s: %v", path, err)
	}
	return t, nil
}

// Get returns the image at path. A cached copy is returned at once and
// refreshed in the background; a miss is fetched and stored. Paths that
// are not tile assets are refused.
func (c *TileCache) Get(ctx context.Context, path string) ([]byte, error) {
	if !Cacheable(path) {
		return nil, ErrNotCacheable
	}
	if hit, ok := c.lookup(path); ok {
		c.metrics.IncTileHit()
		c.revalidate(path)
		return hit.Body, nil
	}
	c.metrics.IncTileMiss()
	t, err := c.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	return t.Body, nil
}

func (c *TileCache) revalidate(path string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.bg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := c.fetch(ctx, path); err != nil {
			// keep serving the old copy
			Log.Debugf("tile cache: revalidate %s: %v", path, err)
			return
		}
		c.metrics.IncTileRevalidated()
	}()
}

// Wait blocks until background revalidations finish.
func (c *TileCache) Wait() { c.bg.Wait() }

// Close waits for background work and closes the file.
func (c *TileCache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.bg.Wait()
	return c.db.Close()
}

// ResolveTiles finds a loadable file for every ref, walking each
// candidate chain and marking failed names bad. Work runs with bounded
// parallelism; refs already resolved at the current version are skipped.
func (c *TileCache) ResolveTiles(ctx context.Context, ts *TileSet, refs []TileRef) int {
	wg := sizedwaitgroup.New(c.workers)
	var mu sync.Mutex
	loaded := 0
	for _, ref := range refs {
		if name, ok := ts.Resolved(ref.Tile, ref.Idx); ok && c.Has(ts.Path(name)) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add()
		go func(ref TileRef) {
			defer wg.Done()
			for _, name := range ts.Chain(ref.Tile, ref.Idx) {
				if ts.IsBad(name) {
					continue
				}
				if _, err := c.Get(ctx, ts.Path(name)); err != nil {
					ts.MarkBad(name)
					continue
				}
				ts.Resolve(ref.Tile, ref.Idx, name)
				mu.Lock()
				loaded++
				mu.Unlock()
				return
			}
		}(ref)
	}
	wg.Wait()
	return loaded
}
