package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/sharddb/sharddb/pkg/recordkey"
)

// Request codes, carried in Request.Code (per spec.md §6). The
// Transport frame around an encoded Request always has Op OpRequest;
// the code is not copied into Transport.Op.
const (
	CodeAdd            byte = 10
	CodeContains       byte = 11
	CodeRemove         byte = 12
	CodeGetKey         byte = 13
	CodeDeleteDatabase byte = 14
	CodeDeleteSchema   byte = 15
	CodeDeleteTable    byte = 16
)

// Transport op codes. REQUEST carries an encoded Request; the
// connection-management ops carry no payload; OK/ERROR carry whatever
// the operation returned.
const (
	OpRequest               byte = 10
	OpLog                   byte = 13
	OpCloseConnection       byte = 15
	OpGetConnectionClient   byte = 14
	OpGetConnectionStorage  byte = 16
	OpOK                    byte = 20
	OpError                 byte = 21
	OpStorageRebalance      byte = 30
)

// NullPayload is the reserved sentinel meaning "no data", distinct
// from any valid payload (spec.md §6).
var NullPayload = []byte("null")

// IsNull reports whether payload is the null sentinel.
func IsNull(payload []byte) bool {
	return string(payload) == string(NullPayload)
}

// Request is the envelope a ClientStub sends to the Router: a code
// plus a three-level namespace path and an op-specific payload.
//
// ID is a KSUID correlation id, not one of the five fields spec.md §6
// fixes for the request envelope: it rides along as a trailing field
// so every log line the router and peer emit about a request can be
// joined back to the client call that produced it, the way the
// teacher's store hands out a KSUID per record handle. A Request built
// directly (rather than through client.Stub) may leave ID empty; the
// router mints one itself before logging if so (see Router.dispatch).
type Request struct {
	Code     byte
	Database string
	Schema   string
	Table    string
	Payload  []byte
	ID       string
}

// EncodeRequest renders a Request as { code, database, schema, table,
// payload, id }, each string length-prefixed and payload length-
// prefixed raw bytes.
func EncodeRequest(r Request) []byte {
	buf := make([]byte, 0, 48+len(r.Database)+len(r.Schema)+len(r.Table)+len(r.Payload)+len(r.ID))
	buf = append(buf, r.Code)
	buf = putString(buf, r.Database)
	buf = putString(buf, r.Schema)
	buf = putString(buf, r.Table)
	buf = putBytes(buf, r.Payload)
	buf = putString(buf, r.ID)
	return buf
}

// DecodeRequest parses the wire form produced by EncodeRequest. The
// trailing ID field is optional on the wire for backward tolerance: a
// frame truncated right after Payload still decodes, with ID empty.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) < 1 {
		return Request{}, fmt.Errorf("codec: truncated request code")
	}
	r := Request{Code: data[0]}
	data = data[1:]
	var err error
	if r.Database, data, err = getString(data); err != nil {
		return Request{}, err
	}
	if r.Schema, data, err = getString(data); err != nil {
		return Request{}, err
	}
	if r.Table, data, err = getString(data); err != nil {
		return Request{}, err
	}
	if r.Payload, data, err = getBytes(data); err != nil {
		return Request{}, err
	}
	if len(data) > 0 {
		if r.ID, _, err = getString(data); err != nil {
			return Request{}, err
		}
	}
	return r, nil
}

// Transport is the frame a channel.Channel carries between router and
// peer, or router and client: { status, op, payload }.
type Transport struct {
	Status byte
	Op     byte
	Payload []byte
}

// EncodeTransport renders a Transport frame. No field is written more
// than once — the source this protocol descends from wrote its payload
// length then the raw payload twice in sequence; that bug is not
// reproduced here (spec.md §9).
func EncodeTransport(t Transport) []byte {
	buf := make([]byte, 0, 6+len(t.Payload))
	buf = append(buf, t.Status, t.Op)
	buf = putBytes(buf, t.Payload)
	return buf
}

// DecodeTransport parses the wire form produced by EncodeTransport.
func DecodeTransport(data []byte) (Transport, error) {
	if len(data) < 2 {
		return Transport{}, fmt.Errorf("codec: truncated transport header")
	}
	t := Transport{Status: data[0], Op: data[1]}
	var err error
	if t.Payload, _, err = getBytes(data[2:]); err != nil {
		return Transport{}, err
	}
	return t, nil
}

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

func getBytes(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("codec: truncated payload length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, fmt.Errorf("codec: truncated payload: want %d have %d", n, len(data))
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

// EncodeKey renders a recordkey.Key as the fixed 16-byte form
// recordkey.Encode produces, with no length prefix of its own; it
// travels as a Request.Payload, which EncodeRequest length-prefixes.
func EncodeKey(k recordkey.Key) []byte {
	b := recordkey.Encode(k)
	return b[:]
}

// DecodeKey parses the fixed 16-byte form produced by EncodeKey.
func DecodeKey(data []byte) (recordkey.Key, error) {
	if len(data) != 16 {
		return recordkey.Key{}, fmt.Errorf("codec: key payload must be 16 bytes, got %d", len(data))
	}
	return recordkey.Key{
		ContestID:   int64(binary.BigEndian.Uint64(data[0:8])),
		CandidateID: int64(binary.BigEndian.Uint64(data[8:16])),
	}, nil
}
