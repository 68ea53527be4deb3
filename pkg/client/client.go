// Package client implements ClientStub: the typed API an application
// process uses to talk to the Router, hiding envelope encoding and the
// request/response round trip (spec.md §4.5).
package client

import (
	"fmt"

	"github.com/segmentio/ksuid"

	"github.com/sharddb/sharddb/pkg/channel"
	"github.com/sharddb/sharddb/pkg/codec"
	"github.com/sharddb/sharddb/pkg/recordkey"
)

// Stub wraps one Channel to the Router. Each method blocks until the
// matching response arrives; because a client never has more than one
// request outstanding (spec.md §4.4), the next frame received is
// always the answer to the request just sent.
type Stub struct {
	ch channel.Channel
}

// New wraps ch as a ClientStub.
func New(ch channel.Channel) *Stub {
	return &Stub{ch: ch}
}

func (s *Stub) roundTrip(req codec.Request) (codec.Transport, error) {
	if req.ID == "" {
		req.ID = ksuid.New().String()
	}
	frame := codec.EncodeTransport(codec.Transport{Status: codec.OpRequest, Op: codec.OpRequest, Payload: codec.EncodeRequest(req)})
	if err := s.ch.TrySend(frame); err != nil {
		return codec.Transport{}, fmt.Errorf("client: sending request: %w", err)
	}
	for {
		frame, ok := s.ch.TryRecv()
		if ok {
			return codec.DecodeTransport(frame)
		}
		if s.ch.Closed() {
			return codec.Transport{}, fmt.Errorf("client: channel closed awaiting response")
		}
	}
}

func boolResult(tr codec.Transport, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if tr.Op == codec.OpError {
		return false, fmt.Errorf("client: %s", tr.Payload)
	}
	return string(tr.Payload) == "true", nil
}

// Add inserts rec (keyed by its own ContestID/CandidateID fields) into
// (db, schema, table). It returns false if the key is already present.
func (s *Stub) Add(db, schema, table string, rec codec.Record) (bool, error) {
	req := codec.Request{Code: codec.CodeAdd, Database: db, Schema: schema, Table: table, Payload: codec.EncodeRecord(rec)}
	return boolResult(s.roundTrip(req))
}

// Contains reports whether key is present in (db, schema, table).
func (s *Stub) Contains(db, schema, table string, key recordkey.Key) (bool, error) {
	req := codec.Request{Code: codec.CodeContains, Database: db, Schema: schema, Table: table, Payload: codec.EncodeKey(key)}
	return boolResult(s.roundTrip(req))
}

// Remove deletes key from (db, schema, table).
func (s *Stub) Remove(db, schema, table string, key recordkey.Key) (bool, error) {
	req := codec.Request{Code: codec.CodeRemove, Database: db, Schema: schema, Table: table, Payload: codec.EncodeKey(key)}
	return boolResult(s.roundTrip(req))
}

// GetKey returns the record stored at key, if present.
func (s *Stub) GetKey(db, schema, table string, key recordkey.Key) (codec.Record, bool, error) {
	req := codec.Request{Code: codec.CodeGetKey, Database: db, Schema: schema, Table: table, Payload: codec.EncodeKey(key)}
	tr, err := s.roundTrip(req)
	if err != nil {
		return codec.Record{}, false, err
	}
	if tr.Op == codec.OpError {
		return codec.Record{}, false, fmt.Errorf("client: %s", tr.Payload)
	}
	if codec.IsNull(tr.Payload) {
		return codec.Record{}, false, nil
	}
	rec, err := codec.DecodeRecord(tr.Payload)
	if err != nil {
		return codec.Record{}, false, err
	}
	return rec, true, nil
}

// DeleteDatabase removes db and everything nested under it across
// every storage peer.
func (s *Stub) DeleteDatabase(db string) (bool, error) {
	req := codec.Request{Code: codec.CodeDeleteDatabase, Database: db, Payload: codec.NullPayload}
	return boolResult(s.roundTrip(req))
}

// DeleteSchema removes (db, schema) across every storage peer.
func (s *Stub) DeleteSchema(db, schema string) (bool, error) {
	req := codec.Request{Code: codec.CodeDeleteSchema, Database: db, Schema: schema, Payload: codec.NullPayload}
	return boolResult(s.roundTrip(req))
}

// DeleteTable removes (db, schema, table) across every storage peer.
func (s *Stub) DeleteTable(db, schema, table string) (bool, error) {
	req := codec.Request{Code: codec.CodeDeleteTable, Database: db, Schema: schema, Table: table, Payload: codec.NullPayload}
	return boolResult(s.roundTrip(req))
}

// Close sends CLOSE_CONNECTION and tears down the underlying channel.
func (s *Stub) Close() error {
	frame := codec.EncodeTransport(codec.Transport{Status: codec.OpCloseConnection, Op: codec.OpCloseConnection, Payload: codec.NullPayload})
	s.ch.TrySend(frame)
	return s.ch.Close()
}
