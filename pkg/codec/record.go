package codec

import (
	"encoding/binary"
	"fmt"
)

// Record is the payload describing one contestant's entry. The key
// pair (ContestID, CandidateID) is carried on the record itself as
// well as in recordkey.Key; the codec does not special-case it.
type Record struct {
	CandidateID         int64
	LastName            string
	FirstName           string
	Patronymic          string
	BirthDate           string
	ResumeLink          string
	HRManagerID         int64
	ContestID           int64
	ProgrammingLanguage string
	NumTasks            int32
	SolvedTasks         int32
	CheatingDetected    bool
}

func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func getString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("codec: truncated string length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return "", nil, fmt.Errorf("codec: truncated string body: want %d have %d", n, len(data))
	}
	return string(data[:n]), data[n:], nil
}

func putInt64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func getInt64(data []byte) (int64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("codec: truncated int64")
	}
	return int64(binary.BigEndian.Uint64(data[:8])), data[8:], nil
}

func putInt32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

func getInt32(data []byte) (int32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("codec: truncated int32")
	}
	return int32(binary.BigEndian.Uint32(data[:4])), data[4:], nil
}

// EncodeRecord renders a Record as its twelve fields in declared order,
// each length-prefixed (strings) or fixed-width big-endian (integers
// and the single boolean byte). The encoding is self-describing: a
// decoder never needs to guess a field's length.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, 0, 64+len(r.LastName)+len(r.FirstName)+len(r.Patronymic)+len(r.BirthDate)+len(r.ResumeLink)+len(r.ProgrammingLanguage))
	buf = putInt64(buf, r.CandidateID)
	buf = putString(buf, r.LastName)
	buf = putString(buf, r.FirstName)
	buf = putString(buf, r.Patronymic)
	buf = putString(buf, r.BirthDate)
	buf = putString(buf, r.ResumeLink)
	buf = putInt64(buf, r.HRManagerID)
	buf = putInt64(buf, r.ContestID)
	buf = putString(buf, r.ProgrammingLanguage)
	buf = putInt32(buf, r.NumTasks)
	buf = putInt32(buf, r.SolvedTasks)
	if r.CheatingDetected {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeRecord parses the wire form produced by EncodeRecord. Decoding
// is exact: encoding the result reproduces the input byte for byte.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	var err error
	if r.CandidateID, data, err = getInt64(data); err != nil {
		return Record{}, err
	}
	if r.LastName, data, err = getString(data); err != nil {
		return Record{}, err
	}
	if r.FirstName, data, err = getString(data); err != nil {
		return Record{}, err
	}
	if r.Patronymic, data, err = getString(data); err != nil {
		return Record{}, err
	}
	if r.BirthDate, data, err = getString(data); err != nil {
		return Record{}, err
	}
	if r.ResumeLink, data, err = getString(data); err != nil {
		return Record{}, err
	}
	if r.HRManagerID, data, err = getInt64(data); err != nil {
		return Record{}, err
	}
	if r.ContestID, data, err = getInt64(data); err != nil {
		return Record{}, err
	}
	if r.ProgrammingLanguage, data, err = getString(data); err != nil {
		return Record{}, err
	}
	if r.NumTasks, data, err = getInt32(data); err != nil {
		return Record{}, err
	}
	if r.SolvedTasks, data, err = getInt32(data); err != nil {
		return Record{}, err
	}
	if len(data) < 1 {
		return Record{}, fmt.Errorf("codec: truncated bool field")
	}
	r.CheatingDetected = data[0] != 0
	return r, nil
}
