package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pkworld/worldsim"
)

// worldsim serves a local stand-in of the game server for development
// and end-to-end tests of the client.
func main() {
	var (
		addr    string
		seed    int64
		logPath string
		level   string
		asJSON  bool
		stepT   float64
	)
	flag.StringVar(&addr, "addr", ":5000", "listen address, e.g. :5000")
	flag.Int64Var(&seed, "seed", 1, "terrain seed")
	flag.StringVar(&logPath, "log", "worldsim.log", "log file; empty logs to stderr")
	flag.StringVar(&level, "log-level", "info", "debug, info, warn or error")
	flag.BoolVar(&asJSON, "log-json", false, "JSON log lines")
	flag.Float64Var(&stepT, "step", 0, "seconds per step (0 keeps the default)")
	flag.Parse()

	if err := worldsim.InitLogger(logPath, level, asJSON); err != nil {
		panic(err)
	}
	defer worldsim.SyncLogger()

	cfg := worldsim.DefaultConfig()
	cfg.Seed = seed
	if stepT > 0 {
		cfg.StepT = stepT
	}
	world := worldsim.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	world.StartTicker(ctx)

	srv := &http.Server{Addr: addr, Handler: worldsim.NewServer(world).Routes()}
	go func() {
		worldsim.Log.Infof("worldsim listening on %s (seed %d)", addr, seed)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			worldsim.Log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	worldsim.Log.Info("Shutting down...")

	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdown); err != nil {
		worldsim.Log.Warnf("shutdown: %v", err)
	}
}
