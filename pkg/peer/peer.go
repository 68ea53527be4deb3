// Package peer implements StoragePeer: the process that holds one
// partition of the database and participates in resharding when the
// storage fleet's membership changes (spec.md §4.3).
package peer

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/sharddb/sharddb/pkg/channel"
	"github.com/sharddb/sharddb/pkg/codec"
	"github.com/sharddb/sharddb/pkg/logging"
	"github.com/sharddb/sharddb/pkg/metrics"
	"github.com/sharddb/sharddb/pkg/partition"
	"github.com/sharddb/sharddb/pkg/recordkey"
)

// ParsePeerID recovers a peer's shard index from the connection name
// the router assigned it at handshake (e.g. "storage-3" -> 3), per
// spec.md §4.3.
func ParsePeerID(name string) (int, error) {
	_, suffix, ok := strings.Cut(name, "-")
	if !ok {
		return 0, fmt.Errorf("peer: malformed connection name %q", name)
	}
	id, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("peer: connection name %q has a non-numeric suffix: %w", name, err)
	}
	return id, nil
}

type deletionEntry struct {
	db, schema, table string
	key               recordkey.Key
}

// StoragePeer applies requests from the router to its PartitionEngine
// and drives its half of resharding.
type StoragePeer struct {
	id         int
	shardLabel string
	engine     *partition.Engine
	reqCh      channel.Channel // router <-> peer request/response traffic
	reshardCh  channel.Channel // peer -> router reshard-induced ADDs
	sink       logging.Sink

	pendingOut     [][]byte
	pendingDeletes []deletionEntry

	m *metrics.Peer
}

// New constructs a StoragePeer with the given shard id, backed by a
// fresh PartitionEngine sized by tableDegree/tableLeafCap/
// tableCapacity (tableCapacity <= 0 means an unbounded arena).
func New(id, tableDegree, tableLeafCap, tableCapacity int, reqCh, reshardCh channel.Channel, sink logging.Sink) *StoragePeer {
	if sink == nil {
		sink = logging.NewMultiSink()
	}
	return &StoragePeer{
		id:         id,
		shardLabel: strconv.Itoa(id),
		engine:     partition.New(tableDegree, tableLeafCap, tableCapacity),
		reqCh:      reqCh,
		reshardCh:  reshardCh,
		sink:       sink,
	}
}

// Engine exposes the peer's PartitionEngine, mainly for tests.
func (p *StoragePeer) Engine() *partition.Engine { return p.engine }

// SetMetrics attaches a Prometheus metric set the peer's Tick loop
// updates. Optional, mirroring router.Router.SetMetrics.
func (p *StoragePeer) SetMetrics(m *metrics.Peer) {
	p.m = m
}

// Stats is a point-in-time snapshot of peer state, exposed on
// pkg/adminhttp's /debug/stats endpoint.
type Stats struct {
	ID             int `json:"id"`
	Records        int `json:"records"`
	ReshardPending int `json:"reshard_pending"`
}

// Stats snapshots the peer's current state.
func (p *StoragePeer) Stats() Stats {
	return Stats{
		ID:             p.id,
		Records:        p.recordCount(),
		ReshardPending: len(p.pendingOut) + len(p.pendingDeletes),
	}
}

// Tick runs one cooperative poll: drain one queued reshard ADD if the
// outbound channel has room, then dispatch at most one inbound
// request, exactly as spec.md §4.3 numbers the steps.
func (p *StoragePeer) Tick() {
	if len(p.pendingOut) > 0 {
		if err := p.reshardCh.TrySend(p.pendingOut[0]); err == nil {
			p.pendingOut = p.pendingOut[1:]
		}
	}

	frame, ok := p.reqCh.TryRecv()
	if !ok {
		return
	}
	tr, err := codec.DecodeTransport(frame)
	if err != nil {
		p.reqCh.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}))
		return
	}

	switch tr.Op {
	case codec.OpStorageRebalance:
		p.handleRebalance(tr.Payload)
	case codec.OpRequest:
		req, err := codec.DecodeRequest(tr.Payload)
		if err != nil {
			p.reqCh.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}))
			return
		}
		resp := p.apply(req)
		if p.m != nil {
			p.m.RecordOp(p.shardLabel, req.Code, resp.Op != codec.OpError)
			p.m.SetRecordsTotal(p.shardLabel, p.recordCount())
			p.m.SetReshardPending(p.shardLabel, len(p.pendingDeletes)+len(p.pendingOut))
		}
		p.reqCh.TrySend(codec.EncodeTransport(resp))
	default:
		p.reqCh.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte("unknown op")}))
	}
}

// recordCount walks every partition this peer holds and sums its
// records, used only to populate the metrics gauge (not on any
// request's critical path).
func (p *StoragePeer) recordCount() int {
	n := 0
	p.engine.IterAll(func(string, string, string, recordkey.Key, codec.Record) { n++ })
	return n
}

func boolPayload(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// apply dispatches one decoded Request to the PartitionEngine,
// producing the response transport frame (spec.md §4.3 step 2).
func (p *StoragePeer) apply(req codec.Request) codec.Transport {
	errFrame := func(err error) codec.Transport {
		return codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}
	}

	switch req.Code {
	case codec.CodeAdd:
		rec, err := codec.DecodeRecord(req.Payload)
		if err != nil {
			return errFrame(err)
		}
		key := recordkey.Key{ContestID: rec.ContestID, CandidateID: rec.CandidateID}
		ok, err := p.engine.Add(req.Database, req.Schema, req.Table, key, rec)
		if err != nil {
			return p.errorOrFatal(err)
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: boolPayload(ok)}

	case codec.CodeContains:
		key, err := codec.DecodeKey(req.Payload)
		if err != nil {
			return errFrame(err)
		}
		ok, err := p.engine.Contains(req.Database, req.Schema, req.Table, key)
		if err != nil {
			return p.errorOrFatal(err)
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: boolPayload(ok)}

	case codec.CodeRemove:
		key, err := codec.DecodeKey(req.Payload)
		if err != nil {
			return errFrame(err)
		}
		ok, err := p.engine.Remove(req.Database, req.Schema, req.Table, key)
		if err != nil {
			return p.errorOrFatal(err)
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: boolPayload(ok)}

	case codec.CodeGetKey:
		key, err := codec.DecodeKey(req.Payload)
		if err != nil {
			return errFrame(err)
		}
		rec, found, err := p.engine.GetKey(req.Database, req.Schema, req.Table, key)
		if err != nil {
			return p.errorOrFatal(err)
		}
		if !found {
			return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: codec.NullPayload}
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: codec.EncodeRecord(rec)}

	case codec.CodeDeleteDatabase:
		ok, err := p.engine.DeleteDatabase(req.Database)
		if err != nil {
			return p.errorOrFatal(err)
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: boolPayload(ok)}

	case codec.CodeDeleteSchema:
		ok, err := p.engine.DeleteSchema(req.Database, req.Schema)
		if err != nil {
			return p.errorOrFatal(err)
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: boolPayload(ok)}

	case codec.CodeDeleteTable:
		ok, err := p.engine.DeleteTable(req.Database, req.Schema, req.Table)
		if err != nil {
			return p.errorOrFatal(err)
		}
		return codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: boolPayload(ok)}

	default:
		return errFrame(fmt.Errorf("unknown request code %d", req.Code))
	}
}

// errorOrFatal turns a PartitionEngine error (ProtocolError or
// CapacityExhausted; see spec.md §7) into a recoverable ERROR
// response. A StructuralInvariant never reaches here as an error
// value: ordmap panics directly on one instead, and it is each
// cmd/sharddb-* entrypoint's recover wrapper around StoragePeer.Tick
// that logs it CRITICAL and exits (spec.md §7's "structural violations
// abort the peer").
func (p *StoragePeer) errorOrFatal(err error) codec.Transport {
	return codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte(err.Error())}
}

// handleRebalance implements spec.md §4.3's STORAGE_REBALANCE handling:
// ACK immediately, then compute which locally-held records no longer
// belong to this shard under the new peer count N and queue them for
// redistribution.
func (p *StoragePeer) handleRebalance(payload []byte) {
	if len(payload) != 4 {
		p.reqCh.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpError, Op: codec.OpError, Payload: []byte("malformed rebalance payload")}))
		return
	}
	n := int(binary.BigEndian.Uint32(payload))

	p.reqCh.TrySend(codec.EncodeTransport(codec.Transport{Status: codec.OpOK, Op: codec.OpOK, Payload: []byte("true")}))

	p.engine.IterAll(func(db, schema, table string, key recordkey.Key, rec codec.Record) {
		if recordkey.Partition(key, n) == p.id {
			return
		}
		req := codec.Request{Code: codec.CodeAdd, Database: db, Schema: schema, Table: table, Payload: codec.EncodeRecord(rec)}
		frame := codec.EncodeTransport(codec.Transport{Status: codec.OpRequest, Op: codec.OpRequest, Payload: codec.EncodeRequest(req)})
		p.pendingOut = append(p.pendingOut, frame)
		p.pendingDeletes = append(p.pendingDeletes, deletionEntry{db: db, schema: schema, table: table, key: key})
	})

	for _, d := range p.pendingDeletes {
		p.engine.Remove(d.db, d.schema, d.table, d.key)
	}
	p.pendingDeletes = p.pendingDeletes[:0]

	if p.m != nil {
		p.m.SetReshardPending(p.shardLabel, len(p.pendingOut))
		p.m.SetRecordsTotal(p.shardLabel, p.recordCount())
	}
}
