// Package metrics provides the Prometheus instrumentation for the
// router and storage-peer processes, adapted from the teacher's
// pkg/api/metrics.go: the same promauto-registered counter/histogram/
// gauge shape, re-labeled for the coordinator protocol instead of an
// HTTP API. This is operational surface only — no request ever blocks
// on it, matching spec.md §1's "core only emits structured events."
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Router holds every metric the Router's Tick loop updates: request
// counts by code and outcome, dispatch latency, queue depth per
// storage peer, and rebalance duration.
type Router struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
	connectedClients prometheus.Gauge
	connectedStorage prometheus.Gauge
	rebalancesTotal  prometheus.Counter
	rebalanceSeconds prometheus.Histogram
}

// NewRouter registers and returns a Router metric set.
func NewRouter() *Router {
	return &Router{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharddb_router_requests_total",
				Help: "Total requests dispatched by the router, by request code and outcome.",
			},
			[]string{"code", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharddb_router_request_duration_seconds",
				Help:    "Time from the router forwarding a request to a storage peer to receiving that peer's response.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code"},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharddb_router_storage_queue_depth",
				Help: "Number of requests queued on a storage peer's pending-send queue.",
			},
			[]string{"storage"},
		),
		connectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sharddb_router_connected_clients",
			Help: "Number of currently connected clients.",
		}),
		connectedStorage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sharddb_router_connected_storage_peers",
			Help: "Number of currently connected storage peers.",
		}),
		rebalancesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sharddb_router_rebalances_total",
			Help: "Total number of rebalances triggered by storage-fleet membership changes.",
		}),
		rebalanceSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sharddb_router_rebalance_duration_seconds",
			Help:    "Wall-clock duration of a rebalance from trigger to every peer ACKing.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordRequest records one completed dispatch.
func (m *Router) RecordRequest(code byte, ok bool, d time.Duration) {
	status := statusOK
	if !ok {
		status = statusError
	}
	codeStr := requestCodeLabel(code)
	m.requestsTotal.WithLabelValues(codeStr, status).Inc()
	m.requestDuration.WithLabelValues(codeStr).Observe(d.Seconds())
}

// SetQueueDepth reports how many requests are queued on one storage peer.
func (m *Router) SetQueueDepth(storage string, depth int) {
	m.queueDepth.WithLabelValues(storage).Set(float64(depth))
}

// SetConnections reports the current client/storage connection counts.
func (m *Router) SetConnections(clients, storages int) {
	m.connectedClients.Set(float64(clients))
	m.connectedStorage.Set(float64(storages))
}

// RecordRebalance records one completed rebalance's duration.
func (m *Router) RecordRebalance(d time.Duration) {
	m.rebalancesTotal.Inc()
	m.rebalanceSeconds.Observe(d.Seconds())
}

func requestCodeLabel(code byte) string {
	switch code {
	case 10:
		return "add"
	case 11:
		return "contains"
	case 12:
		return "remove"
	case 13:
		return "get_key"
	case 14:
		return "delete_database"
	case 15:
		return "delete_schema"
	case 16:
		return "delete_table"
	default:
		return "unknown"
	}
}

// Peer holds every metric the storage-peer fleet's Tick loops update:
// applied operation counts, total records per shard, and reshard
// queue depth. One Peer is registered per process and shared by every
// in-process StoragePeer, each reporting under its own "shard" label —
// promauto's top-level constructors register against the global
// registry and panic on a duplicate registration, so a second
// NewPeer() call (e.g. once per hosted peer) would crash the process
// on startup; callers construct exactly one Peer and pass it to every
// StoragePeer.SetMetrics.
type Peer struct {
	opsTotal       *prometheus.CounterVec
	recordsTotal   *prometheus.GaugeVec
	reshardPending *prometheus.GaugeVec
}

// NewPeer registers and returns a Peer metric set, shared across every
// storage peer a process hosts.
func NewPeer() *Peer {
	return &Peer{
		opsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharddb_peer_operations_total",
				Help: "Total operations applied by a storage peer to its PartitionEngine, by shard, code and outcome.",
			},
			[]string{"shard", "code", "status"},
		),
		recordsTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharddb_peer_records_total",
				Help: "Total records currently held across every partition on a peer.",
			},
			[]string{"shard"},
		),
		reshardPending: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharddb_peer_reshard_pending",
				Help: "Records queued to be redistributed to another peer after a rebalance.",
			},
			[]string{"shard"},
		),
	}
}

// RecordOp records one applied operation for the given shard.
func (m *Peer) RecordOp(shard string, code byte, ok bool) {
	status := statusOK
	if !ok {
		status = statusError
	}
	m.opsTotal.WithLabelValues(shard, requestCodeLabel(code), status).Inc()
}

// SetRecordsTotal reports one shard's current total record count.
func (m *Peer) SetRecordsTotal(shard string, n int) {
	m.recordsTotal.WithLabelValues(shard).Set(float64(n))
}

// SetReshardPending reports how many ADDs are still queued to be
// redistributed after a STORAGE_REBALANCE on the given shard.
func (m *Peer) SetReshardPending(shard string, n int) {
	m.reshardPending.WithLabelValues(shard).Set(float64(n))
}
