/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
// Command sharddb-router runs the coordinator: a Router plus the
// storage-peer fleet it dispatches to. The real shared-memory
// transport between separate router and peer processes is out of
// scope (spec.md §1), so this entrypoint hosts the peers in-process
// over pkg/channel's reference implementation, one goroutine per
// peer each driving its own single-threaded Tick loop — the "no
// intra-process parallelism in the core" rule (spec.md §5) still
// holds per peer, it just means a demo binary can host several.
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
	"github.com/sharddb/sharddb/pkg/router"
)

var (
	configPath string
	numPeers   int
)

var rootCmd = &cobra.Command{
	Use:   "sharddb-router",
	Short: "Run the sharddb coordinator and its storage-peer fleet",
	Long: `sharddb-router accepts client connections, hashes each request to
a storage peer, fans out DELETE_* operations, and drives online
resharding when the storage fleet's membership changes.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults built in if omitted)")
	rootCmd.Flags().IntVarP(&numPeers, "peers", "n", 3, "number of in-process storage peers to start")
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

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}

	tickInterval, err := time.ParseDuration(cfg.TickInterval)
	if err != nil {
		return fmt.Errorf("parsing tick_interval %q: %w", cfg.TickInterval, err)
	}

	rt := router.New(sink)
	routerMetrics := metrics.NewRouter()
	rt.SetMetrics(routerMetrics)

	// One Peer metric set is registered for the whole process and
	// shared by every hosted StoragePeer, each reporting under its own
	// "shard" label: promauto's constructors register against the
	// global Prometheus registry and panic on a duplicate registration,
	// so calling metrics.NewPeer() once per peer would panic on the
	// second peer.
	peerMetrics := metrics.NewPeer()

	for i := 0; i < numPeers; i++ {
		reqA, reqB := channel.NewPair(8)
		reshardA, reshardB := channel.NewPair(8)

		name := rt.RegisterStorage(reqA, reshardA)
		id, err := peer.ParsePeerID(name)
		if err != nil {
			return fmt.Errorf("parsing minted peer id: %w", err)
		}

		sp := peer.New(id, cfg.Tree.Degree, cfg.Tree.LeafCap, cfg.Tree.Capacity, reqB, reshardB, sink)
		sp.SetMetrics(peerMetrics)

		go func(sp *peer.StoragePeer) {
			for {
				tickWithRecover(sp, sink)
				time.Sleep(tickInterval)
			}
		}(sp)
	}

	if cfg.Metrics.Enabled {
		go serveAdmin(cfg.Metrics.Bind, rt, sink)
	}

	sink.Emit(logging.Info, "router started", map[string]any{"peers": numPeers, "bind": cfg.Bind})
	for {
		rt.Tick()
		time.Sleep(tickInterval)
	}
}

// tickWithRecover runs one StoragePeer.Tick, converting a structural-
// invariant panic (spec.md §7: "structural violations abort the peer")
// into a CRITICAL log line and a clean process exit, rather than
// letting a raw Go panic unwind past the goroutine and take down the
// whole router process with a raw stack trace.
func tickWithRecover(sp *peer.StoragePeer, sink logging.Sink) {
	defer func() {
		if r := recover(); r != nil {
			sink.Emit(logging.Critical, "storage peer aborted on structural invariant violation", map[string]any{"panic": fmt.Sprint(r)})
			os.Exit(1)
		}
	}()
	sp.Tick()
}

func buildSink(cfg *config.Config) (logging.Sink, error) {
	if cfg.Logging.SettingsPath == "" {
		level, err := logging.ParseSeverity(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing logging.level: %w", err)
		}
		return logging.NewConsoleSink(level), nil
	}
	settings, err := logging.LoadSettings(cfg.Logging.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading log settings: %w", err)
	}
	return settings.Build()
}

func serveAdmin(bind string, rt *router.Router, sink logging.Sink) {
	handler := adminhttp.New(adminhttp.NewStatsSource(rt.Stats))
	sink.Emit(logging.Info, "admin HTTP surface listening", map[string]any{"bind": bind})
	if err := http.ListenAndServe(bind, handler); err != nil {
		sink.Emit(logging.Error, "admin HTTP surface exited", map[string]any{"error": err.Error()})
	}
}
