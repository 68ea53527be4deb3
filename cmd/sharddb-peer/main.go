/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
// Command sharddb-peer runs a single StoragePeer in isolation: its own
// PartitionEngine, its own tick loop, and the admin HTTP surface. It
// is a standalone entrypoint for exercising and observing peer
// behavior (apply/reshard logic, metrics, health) independent of a
// live router connection: the real channel between a separate router
// process and a separate peer process is the shared-memory transport
// spec.md §1 puts out of scope, so this binary loops its own peer
// against a loopback channel.NewPair rather than dialing out to one.
// cmd/sharddb-router is what actually wires a fleet of peers to a
// live router, in-process, over the same reference transport.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharddb/sharddb/pkg/adminhttp"
	"github.com/sharddb/sharddb/pkg/channel"
	"github.com/sharddb/sharddb/pkg/config"
	"github.com/sharddb/sharddb/pkg/logging"
	"github.com/sharddb/sharddb/pkg/metrics"
	"github.com/sharddb/sharddb/pkg/peer"
)

var (
	configPath string
	peerID     int
)

var rootCmd = &cobra.Command{
	Use:   "sharddb-peer",
	Short: "Run a single sharddb storage peer",
	Long: `sharddb-peer owns one partition of the database and applies
requests to it, including the ADD/DELETE traffic a STORAGE_REBALANCE
generates when the storage fleet's membership changes.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults built in if omitted)")
	rootCmd.Flags().IntVar(&peerID, "id", 0, "this peer's shard id, i.e. its position mod N in the storage fleet")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	level, err := logging.ParseSeverity(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parsing logging.level: %w", err)
	}
	sink := logging.NewConsoleSink(level)

	tickInterval, err := time.ParseDuration(cfg.TickInterval)
	if err != nil {
		return fmt.Errorf("parsing tick_interval %q: %w", cfg.TickInterval, err)
	}

	reqLocal, _ := channel.NewPair(8)
	reshardLocal, _ := channel.NewPair(8)

	sp := peer.New(peerID, cfg.Tree.Degree, cfg.Tree.LeafCap, cfg.Tree.Capacity, reqLocal, reshardLocal, sink)
	sp.SetMetrics(metrics.NewPeer())

	if cfg.Metrics.Enabled {
		go serveAdmin(cfg.Metrics.Bind, sp, sink)
	}

	sink.Emit(logging.Info, "peer started", map[string]any{"id": peerID})
	for {
		tickWithRecover(sp, sink)
		time.Sleep(tickInterval)
	}
}

// tickWithRecover runs one StoragePeer.Tick, converting a structural-
// invariant panic (spec.md §7: "structural violations abort the peer")
// into a CRITICAL log line and a clean process exit, rather than
// letting a raw Go panic unwind past the tick loop.
func tickWithRecover(sp *peer.StoragePeer, sink logging.Sink) {
	defer func() {
		if r := recover(); r != nil {
			sink.Emit(logging.Critical, "storage peer aborted on structural invariant violation", map[string]any{"panic": fmt.Sprint(r)})
			os.Exit(1)
		}
	}()
	sp.Tick()
}

func serveAdmin(bind string, sp *peer.StoragePeer, sink logging.Sink) {
	handler := adminhttp.New(adminhttp.NewStatsSource(sp.Stats))
	sink.Emit(logging.Info, "admin HTTP surface listening", map[string]any{"bind": bind})
	if err := http.ListenAndServe(bind, handler); err != nil {
		sink.Emit(logging.Error, "admin HTTP surface exited", map[string]any{"error": err.Error()})
	}
}
