// Package router implements the coordinator protocol: the Router
// accepts client and storage-peer connections, hashes each request to
// a storage peer (or fans it out to all of them), and drives online
// resharding when the storage fleet changes (spec.md §4.4).
package router

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/sharddb/sharddb/pkg/channel"
	"github.com/sharddb/sharddb/pkg/codec"
	"github.com/sharddb/sharddb/pkg/logging"
	"github.com/sharddb/sharddb/pkg/metrics"
	"github.com/sharddb/sharddb/pkg/recordkey"
)

// clientConn is one connected client awaiting a response to its most
// recent request. At most one request is ever outstanding per client
// (spec.md §4.4's ordering guarantee), so no correlation id is needed.
type clientConn struct {
	id     string
	ch     channel.Channel
	active bool // true while waiting for the next request, false while a request is in flight
}

// queuedRequest is one request enqueued on a storage peer's work
// queue, paired with whoever is waiting on its response.
type queuedRequest struct {
	origin       Originator
	frame        []byte
	code         byte
	dispatchedAt time.Time
}

// storageConn is one connected storage peer: its request/response
// channel, its peer-initiated reshard channel, its pending-send queue,
// and the slot for whichever request it is currently processing.
type storageConn struct {
	id        string
	reqCh     channel.Channel // router <-> peer request/response traffic
	reshardCh channel.Channel // peer -> router reshard-induced ADDs
	inflight  Originator
	queue     []queuedRequest

	inflightCode  byte
	inflightSince time.Time
}

// Router is the coordinator: connection registry, dispatcher, and
// rebalance driver described in spec.md §4.4.
type Router struct {
	clients    []*clientConn
	storages   []*storageConn
	clientSeq  uint64
	storageSeq uint64

	rebalanceActive  bool
	rebalancePending bool
	rebalanceFan     *FanOutOriginator
	rebalanceSince   time.Time

	sink logging.Sink
	m    *metrics.Router
}

// New constructs an empty Router. A nil sink discards every event.
func New(sink logging.Sink) *Router {
	if sink == nil {
		sink = logging.NewMultiSink()
	}
	return &Router{sink: sink}
}

// SetMetrics attaches a Prometheus metric set the Router's Tick loop
// updates as it dispatches and completes requests. Optional: a Router
// with no metrics set behaves identically, just without the gauges and
// histograms (spec.md §1 treats this purely as an operational surface,
// never load-bearing for correctness).
func (r *Router) SetMetrics(m *metrics.Router) {
	r.m = m
}

// RegisterClient mints a client connection over ch and returns its
// channel name, standing in for the GET_CONNECTION_CLIENT handshake
// (spec.md §4.4 rule 1). Establishing ch itself is the out-of-scope
// shared-memory transport (spec.md §1); this method is the control-
// channel reply ("here is your channel name") with no further
// algorithmic content.
func (r *Router) RegisterClient(ch channel.Channel) string {
	r.clientSeq++
	name := fmt.Sprintf("client-%d", r.clientSeq)
	r.clients = append(r.clients, &clientConn{id: name, ch: ch, active: true})
	r.sink.Emit(logging.Info, "client connected", map[string]any{"client": name})
	return name
}

// RegisterStorage mints a storage connection over (reqCh, reshardCh)
// and returns its channel name. It also sets rebalancePending, exactly
// as GET_CONNECTION_STORAGE does in spec.md §4.4 rule 1. The name's
// numeric suffix is the peer's 0-based position among the storages,
// i.e. the shard index keys are routed to.
func (r *Router) RegisterStorage(reqCh, reshardCh channel.Channel) string {
	name := fmt.Sprintf("storage-%d", r.storageSeq)
	r.storageSeq++
	r.storages = append(r.storages, &storageConn{id: name, reqCh: reqCh, reshardCh: reshardCh})
	r.rebalancePending = true
	r.sink.Emit(logging.Info, "storage peer connected", map[string]any{"storage": name})
	return name
}

// NumStorages reports how many storage peers are currently connected.
func (r *Router) NumStorages() int { return len(r.storages) }

// NumClients reports how many clients are currently connected.
func (r *Router) NumClients() int { return len(r.clients) }

// RebalanceActive reports whether a rebalance is currently in flight.
func (r *Router) RebalanceActive() bool { return r.rebalanceActive }

// Stats is a point-in-time snapshot of router state, exposed on
// pkg/adminhttp's /debug/stats endpoint.
type Stats struct {
	Clients          int            `json:"clients"`
	Storages         int            `json:"storages"`
	RebalanceActive  bool           `json:"rebalance_active"`
	RebalancePending bool           `json:"rebalance_pending"`
	QueueDepth       map[string]int `json:"queue_depth"`
}

// Stats snapshots the router's current state.
func (r *Router) Stats() Stats {
	depth := make(map[string]int, len(r.storages))
	for _, s := range r.storages {
		depth[s.id] = len(s.queue)
	}
	return Stats{
		Clients:          len(r.clients),
		Storages:         len(r.storages),
		RebalanceActive:  r.rebalanceActive,
		RebalancePending: r.rebalancePending,
		QueueDepth:       depth,
	}
}

// Tick runs one cooperative poll over every connection: client drain,
// peer drain, then the rebalance trigger (spec.md §4.4).
func (r *Router) Tick() {
	r.drainClients()
	r.drainStorages()
	r.triggerRebalance()
	if r.m != nil {
		r.m.SetConnections(len(r.clients), len(r.storages))
	}
}

func (r *Router) drainClients() {
	var remaining []*clientConn
	for _, c := range r.clients {
		if !c.active {
			remaining = append(remaining, c)
			continue
		}
		frame, ok := c.ch.TryRecv()
		if !ok {
			if c.ch.Closed() {
				// An implicit CLOSE_CONNECTION: drop silently, per spec.md §5.
				r.sink.Emit(logging.Info, "client channel closed", map[string]any{"client": c.id})
				continue
			}
			remaining = append(remaining, c)
			continue
		}
		tr, err := codec.DecodeTransport(frame)
		if err != nil {
			r.sink.Emit(logging.Warning, "malformed client frame", map[string]any{"client": c.id, "error": err.Error()})
			c.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}))
			remaining = append(remaining, c)
			continue
		}
		switch tr.Op {
		case codec.OpCloseConnection:
			c.ch.Close()
			r.sink.Emit(logging.Info, "client closed connection", map[string]any{"client": c.id})
		case codec.OpRequest:
			req, err := codec.DecodeRequest(tr.Payload)
			if err != nil {
				c.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}))
				remaining = append(remaining, c)
				continue
			}
			c.active = false
			r.dispatch(c, req)
		default:
			c.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte("unknown op")}))
			remaining = append(remaining, c)
		}
	}
	r.clients = remaining
}

func isFanOutCode(code byte) bool {
	return code == codec.CodeDeleteDatabase || code == codec.CodeDeleteSchema || code == codec.CodeDeleteTable
}

// dispatch routes one decoded request to a single shard or fans it out
// to every storage peer, per spec.md §4.4 rule 2.
func (r *Router) dispatch(c *clientConn, req codec.Request) {
	if req.ID == "" {
		req.ID = ksuid.New().String()
	}
	frame := codec.EncodeTransport(codec.Transport{Status: codec.OpRequest, Op: codec.OpRequest, Payload: codec.EncodeRequest(req)})

	if isFanOutCode(req.Code) {
		if len(r.storages) == 0 {
			c.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: []byte("false")}))
			c.active = true
			return
		}
		fan := &FanOutOriginator{ID: req.ID, Remaining: len(r.storages), Target: c}
		r.sink.Emit(logging.Debug, "fan-out dispatched", map[string]any{"id": fan.ID, "code": req.Code, "n": fan.Remaining})
		for _, s := range r.storages {
			s.queue = append(s.queue, queuedRequest{origin: fan, frame: frame, code: req.Code})
		}
		return
	}

	key, err := requestKey(req)
	if err != nil {
		c.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}))
		c.active = true
		return
	}
	if len(r.storages) == 0 {
		c.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte("no storage peers connected")}))
		c.active = true
		return
	}
	shard := recordkey.Partition(key, len(r.storages))
	target := r.storages[shard]
	target.queue = append(target.queue, queuedRequest{origin: SingleOriginator{Client: c}, frame: frame, code: req.Code})
}

// requestKey extracts the routing key from a request: ADD carries a
// full Record, the other per-record ops carry a bare encoded Key.
func requestKey(req codec.Request) (recordkey.Key, error) {
	if req.Code == codec.CodeAdd {
		rec, err := codec.DecodeRecord(req.Payload)
		if err != nil {
			return recordkey.Key{}, err
		}
		return recordkey.Key{ContestID: rec.ContestID, CandidateID: rec.CandidateID}, nil
	}
	return codec.DecodeKey(req.Payload)
}

func (r *Router) drainStorages() {
	for _, s := range r.storages {
		r.drainReshard(s)

		if s.inflight == nil && len(s.queue) > 0 {
			next := s.queue[0]
			s.queue = s.queue[1:]
			if err := s.reqCh.TrySend(next.frame); err != nil {
				r.failOriginator(next.origin, 0, err)
				continue
			}
			s.inflight = next.origin
			s.inflightCode = next.code
			s.inflightSince = nowFunc()
			continue
		}

		if s.inflight == nil {
			continue
		}

		if r.m != nil {
			r.m.SetQueueDepth(s.id, len(s.queue))
		}

		frame, ok := s.reqCh.TryRecv()
		if !ok {
			if s.reqCh.Closed() {
				r.failOriginator(s.inflight, s.inflightCode, fmt.Errorf("storage peer %s disconnected", s.id))
				s.inflight = nil
			}
			continue
		}
		tr, err := codec.DecodeTransport(frame)
		if err != nil {
			r.failOriginator(s.inflight, s.inflightCode, err)
			s.inflight = nil
			continue
		}
		if r.m != nil {
			r.m.RecordRequest(s.inflightCode, tr.Op != codec.OpError, nowFunc().Sub(s.inflightSince))
		}
		r.completeOriginator(s.inflight, tr)
		s.inflight = nil
	}
}

// nowFunc is time.Now, indirected so latency instrumentation never
// needs its own seam beyond this one call site.
var nowFunc = time.Now

// drainReshard forwards any ADD requests a storage peer has queued on
// its reshard channel back into the normal dispatch path, fire-and-
// forget (spec.md §4.3: peers append reshard ADDs to "the outbound
// queue", which the router treats exactly like a client request with
// no one waiting on the reply).
func (r *Router) drainReshard(s *storageConn) {
	if s.reshardCh == nil {
		return
	}
	for {
		frame, ok := s.reshardCh.TryRecv()
		if !ok {
			return
		}
		tr, err := codec.DecodeTransport(frame)
		if err != nil {
			r.sink.Emit(logging.Warning, "malformed reshard frame", map[string]any{"storage": s.id, "error": err.Error()})
			continue
		}
		req, err := codec.DecodeRequest(tr.Payload)
		if err != nil {
			r.sink.Emit(logging.Warning, "malformed reshard request", map[string]any{"storage": s.id, "error": err.Error()})
			continue
		}
		key, err := requestKey(req)
		if err != nil || len(r.storages) == 0 {
			continue
		}
		shard := recordkey.Partition(key, len(r.storages))
		reqFrame := codec.EncodeTransport(codec.Transport{Status: codec.OpRequest, Op: codec.OpRequest, Payload: codec.EncodeRequest(req)})
		r.storages[shard].queue = append(r.storages[shard].queue, queuedRequest{origin: SingleOriginator{Client: nil}, frame: reqFrame, code: req.Code})
	}
}

func (r *Router) failOriginator(origin Originator, code byte, err error) {
	if r.m != nil {
		r.m.RecordRequest(code, false, 0)
	}
	errFrame := codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())})
	switch o := origin.(type) {
	case SingleOriginator:
		if o.Client != nil {
			o.Client.ch.TrySend(errFrame)
			o.Client.active = true
		}
	case *FanOutOriginator:
		o.Remaining--
		if o.Remaining <= 0 {
			r.completeFanOut(o)
		}
	}
}

func (r *Router) completeOriginator(origin Originator, tr codec.Transport) {
	switch o := origin.(type) {
	case SingleOriginator:
		if o.Client != nil {
			o.Client.ch.TrySend(codec.EncodeTransport(tr))
			o.Client.active = true
		}
	case *FanOutOriginator:
		o.Remaining--
		if tr.Op == codec.OpOK && string(tr.Payload) == "true" {
			o.Status = true
		}
		if o.Remaining <= 0 {
			r.completeFanOut(o)
		}
	}
}

func (r *Router) completeFanOut(fan *FanOutOriginator) {
	if fan.Target != nil {
		status := "false"
		if fan.Status {
			status = "true"
		}
		fan.Target.ch.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: []byte(status)}))
		fan.Target.active = true
		return
	}
	// The synthetic rebalance receipt: clear rebalanceActive so the
	// next membership change can trigger a fresh rebalance.
	r.rebalanceActive = false
	r.rebalanceFan = nil
	if r.m != nil {
		r.m.RecordRebalance(nowFunc().Sub(r.rebalanceSince))
	}
	r.sink.Emit(logging.Info, "rebalance complete", map[string]any{"id": fan.ID, "storages": len(r.storages)})
}

// triggerRebalance builds and enqueues a STORAGE_REBALANCE(N) request
// on every peer when a join is pending and no rebalance is already
// running (spec.md §4.4 rule 4). A join that arrives while a rebalance
// is in flight is coalesced: rebalancePending stays set and the next
// completion starts a fresh rebalance against the up-to-date N.
func (r *Router) triggerRebalance() {
	if r.rebalanceActive || !r.rebalancePending {
		return
	}
	n := len(r.storages)
	if n == 0 {
		r.rebalancePending = false
		return
	}
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(n))
	frame := codec.EncodeTransport(codec.Transport{Status: codec.OpStorageRebalance, Op: codec.OpStorageRebalance, Payload: payload[:]})

	fan := &FanOutOriginator{ID: ksuid.New().String(), Remaining: n, Target: nil}
	for _, s := range r.storages {
		s.queue = append(s.queue, queuedRequest{origin: fan, frame: frame})
	}
	r.rebalanceFan = fan
	r.rebalanceActive = true
	r.rebalancePending = false
	r.rebalanceSince = nowFunc()
	r.sink.Emit(logging.Info, "rebalance triggered", map[string]any{"id": fan.ID, "n": n})
}
