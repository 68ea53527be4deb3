// Package codec provides the wire format for sharddb: record
// serialization and the two envelope layers a request travels through
// on its way from a client to a storage peer and back.
//
// # Record format
//
// A Record is written as its twelve fields in declared order, each a
// length-prefixed byte string for variable-width fields (strings) or a
// fixed-width big-endian integer otherwise. This is a direct,
// non-compressed "self-describing text archive" per spec: a decoder
// that reads the fields in order never has to guess a length.
//
// # Request envelope
//
// A Request is `{ code: u8, database, schema, table: length-prefixed
// utf8, payload: length-prefixed bytes }`. The payload's shape depends
// on code: ADD carries an encoded Record, CONTAINS/REMOVE/GET_KEY
// carry an encoded recordkey.Key, DELETE_* carry no payload (the null
// sentinel). A length-prefixed id string (Request.ID) follows the
// payload; DecodeRequest accepts a frame that ends before it.
//
// # Transport envelope
//
// A Transport message is `{ status: u8, op: u8, payload:
// length-prefixed bytes }` — the frame a channel.Channel carries
// between router and peer, or router and client. payload for a
// REQUEST op is an encoded Request; for OK/ERROR it is whatever the
// operation returns (a bool, a Record, or the null sentinel).
//
// Every length prefix here is a fixed big-endian uint32, not the
// native-endian size_t the original source used — peers in this
// implementation are not guaranteed to share a process or an
// architecture, so the prefix width and byte order are fixed instead
// of left to the platform.
//
// Unlike the source this protocol was distilled from, no Encode
// function here writes a field more than once: the source's
// SharedObject::serialize wrote its payload length then the raw
// payload bytes twice in sequence, which this implementation does not
// reproduce.
package codec
