// Package recordkey defines the record key every storage peer sorts
// and routes on: (contest_id, candidate_id), contest_id major. The
// ordering and the hash function here are load-bearing — OrderedMap
// relies on Compare for its total order, and the router relies on
// Partition to agree with every peer about which shard owns a key.
package recordkey

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Key identifies a record by its natural candidate/contest pair.
type Key struct {
	ContestID   int64
	CandidateID int64
}

// Compare orders keys contest_id major, candidate_id minor, matching
// the original ContestInfo comparator.
func Compare(a, b Key) int {
	if a.ContestID != b.ContestID {
		if a.ContestID < b.ContestID {
			return -1
		}
		return 1
	}
	if a.CandidateID != b.CandidateID {
		if a.CandidateID < b.CandidateID {
			return -1
		}
		return 1
	}
	return 0
}

// Encode renders a key as a fixed 16-byte big-endian buffer, contest_id
// then candidate_id, used as the hash input for Partition.
func Encode(k Key) [16]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(k.ContestID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(k.CandidateID))
	return buf
}

// Partition maps a key to a shard index in [0, n). n must be >= 1.
func Partition(k Key, n int) int {
	if n < 1 {
		panic("recordkey: partition count must be >= 1")
	}
	buf := Encode(k)
	h := xxhash.Sum64(buf[:])
	return int(h % uint64(n))
}
