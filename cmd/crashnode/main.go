// Package main implements the crashnode process: one mesh node
// answering crash-record queries locally and fanning out to its
// configured peers.
//
// Usage:
//
//	crashnode <config.json> [data.csv]
//
// The config file is the overlay topology document described in
// spec.md §6; the node id is taken from CRASHNODE_ID. The optional
// CSV is loaded into the LocalStore at startup; a missing or
// malformed file is logged and the node proceeds with an empty store.
//
// Exit codes:
//   - 0: clean shutdown (signal or stdin EOF)
//   - 1: config load failure or server start failure
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/crashmesh/internal/engine"
	"github.com/dreamware/crashmesh/internal/localstore"
	"github.com/dreamware/crashmesh/internal/meshconfig"
	"github.com/dreamware/crashmesh/internal/meshlog"
	"github.com/dreamware/crashmesh/internal/resultcache"
	"github.com/dreamware/crashmesh/internal/rpc"
	"github.com/dreamware/crashmesh/internal/timing"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	raw := os.Getenv(k)
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func main() {
	os.Exit(run())
}

// run contains the full startup/shutdown sequence so tests can drive
// it without calling os.Exit directly.
func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: crashnode <config.json> [data.csv]")
		return 1
	}
	configPath := os.Args[1]

	nodeID := mustGetenvNodeID()
	dev := getenv("CRASHNODE_LOG_DEV", "") != ""

	log, err := meshlog.New(nodeID, dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	cfg, err := meshconfig.Load(configPath, nodeID)
	if err != nil {
		log.Errorw("config load failed", "error", err)
		return 1
	}

	store := localstore.New()
	switch {
	case len(os.Args) >= 3:
		csvPath := os.Args[2]
		if n, err := store.LoadCSV(csvPath); err != nil {
			log.Warnw("csv load failed, proceeding with empty store", "path", csvPath, "error", err)
		} else {
			log.Infow("loaded csv", "path", csvPath, "rows", n)
		}
	case getenv("CRASHNODE_SEED", "") != "":
		seedPath := getenv("CRASHNODE_SEED", "")
		if n, err := store.SeedDemo(seedPath); err != nil {
			log.Warnw("demo seed load failed, proceeding with empty store", "path", seedPath, "error", err)
		} else {
			log.Infow("loaded demo seed", "path", seedPath, "rows", n)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheTTL := getenvDuration("CRASHNODE_CACHE_TTL_MS", 5*time.Second)

	cache := resultcache.New(ctx, resultcache.Options{
		RedisAddr: getenv("CRASHNODE_REDIS_ADDR", "localhost:6379"),
		Namespace: "crashmesh:cache:" + nodeID,
		MaxItems:  1000,
	}, log)

	ledger := timing.New()

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry, nodeID)

	eng := engine.New(cfg, store, cache, ledger, metrics, log, cacheTTL)

	server := rpc.NewServer(cfg.ListenAddr(), log)
	server.OnQuery(eng.HandleQuery)
	server.OnData(eng.HandleData)
	if cfg.IsPortal() {
		server.OnNodes(eng.NodeStatuses)
	}

	if err := server.Start(); err != nil {
		log.Errorw("server start failed", "error", err)
		return 1
	}
	log.Infow("crashnode listening", "addr", cfg.ListenAddr())

	eng.DialPeers(ctx, engine.DefaultHTTPDialer(cfg))
	eng.StartForwarding()
	defer eng.StopForwarding()

	waitForShutdown(log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warnw("server shutdown error", "error", err)
	}

	log.Infow("crashnode stopped")
	return 0
}

// waitForShutdown blocks until SIGINT/SIGTERM arrives or stdin
// reaches EOF, whichever comes first, matching spec.md §6's "Exit 0
// on clean shutdown (e.g., EOF on stdin)".
func waitForShutdown(log interface{ Infow(string, ...any) }) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	stdinEOF := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := os.Stdin.Read(buf); err == io.EOF {
				close(stdinEOF)
				return
			} else if err != nil {
				return
			}
		}
	}()

	select {
	case <-stop:
		log.Infow("shutdown signal received")
	case <-stdinEOF:
		log.Infow("stdin closed, shutting down")
	}
}

func mustGetenvNodeID() string {
	id := os.Getenv("CRASHNODE_ID")
	if id == "" {
		fmt.Fprintln(os.Stderr, "missing env CRASHNODE_ID")
		os.Exit(1)
	}
	return id
}
