package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"

	"pkworld/client"
)

// pkworld runs a client session against a game server. The session is
// drawn to the terminal and streamed to browser viewers over /ws.
func main() {
	var (
		cfgPath    string
		server     string
		logPath    string
		viewerAddr string
		tilesDB    string
		render     bool
		open       bool
		debug      bool
	)
	flag.StringVar(&cfgPath, "config", "", "boot config (JSON)")
	flag.StringVar(&server, "server", "", "game server URL, overrides the config")
	flag.StringVar(&logPath, "log", "pkworld.log", "log file; empty logs to stderr")
	flag.StringVar(&viewerAddr, "viewer", ":8090", "viewer listen address; empty disables it")
	flag.StringVar(&tilesDB, "tiles-db", "tiles.db", "tile cache file; empty disables caching")
	flag.BoolVar(&render, "render", true, "draw the map in this terminal")
	flag.BoolVar(&open, "open", false, "open the /diag page in a browser")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.Parse()

	if err := client.InitLogger(logPath, debug); err != nil {
		panic(err)
	}
	defer client.SyncLogger()

	cfg, err := client.LoadConfig(cfgPath)
	if err != nil {
		client.Log.Fatalf("config: %v", err)
	}
	if server != "" {
		cfg.Server = server
	}

	metrics := &client.Metrics{}
	hc := &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMs) * time.Millisecond}
	api := client.NewAPI(cfg.Server, cfg.Endpoints, hc, metrics)
	notes := client.NewNotifier(cfg.ToastHistory, cfg.Desktop, nil, metrics)

	var cache *client.TileCache
	if tilesDB != "" {
		if cache, err = client.OpenTileCache(tilesDB, api, metrics, nil); err != nil {
			client.Log.Warnf("tile cache disabled: %v", err)
			cache = nil
		}
	}

	sess := client.NewSession(cfg, api, client.Deps{Notifier: notes, Metrics: metrics, Cache: cache})
	hub := client.NewHub(sess, 20)
	sess.Subscribe(hub.Publish)
	notes.OnToast(hub.Toast)

	var term *client.Renderer
	if render {
		term = client.NewRenderer(os.Stdout, 10, 0, 0, nil)
		sess.Subscribe(term.Handle)
		notes.OnToast(term.OnToast)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Init(ctx); err != nil {
		client.Log.Fatalf("init: %v", err)
	}
	client.Log.Infof("session %s against %s", api.SessionID(), cfg.Server)

	var srv *http.Server
	if viewerAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		mux.HandleFunc("/admin/config", client.HandleAdminConfig(sess))
		mux.HandleFunc("/metrics", client.HandleMetrics(sess))
		mux.HandleFunc("/diag", client.HandleDiag(sess))
		mux.HandleFunc("/healthz", client.HandleHealthz(sess))
		if cache != nil {
			mux.HandleFunc("/static/tiles/", client.HandleTile(cache))
		}
		srv = &http.Server{Addr: viewerAddr, Handler: mux}

		go func() {
			client.Log.Infof("viewer listening on %s", viewerAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				client.Log.Errorf("viewer: %v", err)
				stop()
			}
		}()
		if open {
			if err := browser.OpenURL(diagURL(viewerAddr)); err != nil {
				client.Log.Warnf("open browser: %v", err)
			}
		}
	}

	<-ctx.Done()
	client.Log.Info("Shutting down...")

	if srv != nil {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdown); err != nil {
			client.Log.Warnf("viewer shutdown: %v", err)
		}
		cancel()
	}
	hub.Close()
	sess.Close()
	if cache != nil {
		if err := cache.Close(); err != nil {
			client.Log.Warnf("tile cache close: %v", err)
		}
	}
	if term != nil {
		client.Log.Infof("rendered %d frames", term.Frames())
	}
}

// diagURL is the diagnostics page on the viewer listener.
func diagURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return fmt.Sprintf("http://localhost%s/diag", addr)
	}
	return fmt.Sprintf("http://%s/diag", addr)
}
