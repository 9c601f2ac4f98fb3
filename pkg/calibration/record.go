package calibration

import (
	"encoding/binary"
	"hash/crc32"
	"time"
)

// RecordSize is the on-media size of a calibration slot.
const RecordSize = 20

// Record is the persisted calibration aggregate.
//
// Value is the only externally meaningful field. Generation counts writes and,
// together with the checksum, lets a reader tell a written slot from a blank
// or damaged one. Valid is false until a slot has been read back intact.
type Record struct {
	Value      int32
	Generation uint32
	WrittenAt  time.Time
	Valid      bool
}

// slot layout, big endian:
// [0:4] value int32, [4:8] generation, [8:16] written_at unix ms, [16:20] crc32 of [0:16]
func encodeRecord(r Record) []byte {
	var b [RecordSize]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(r.Value))
	binary.BigEndian.PutUint32(b[4:8], r.Generation)
	binary.BigEndian.PutUint64(b[8:16], uint64(r.WrittenAt.UnixMilli()))
	binary.BigEndian.PutUint32(b[16:20], crc32.ChecksumIEEE(b[:16]))
	return b[:]
}

// decodeRecord never fails: anything that does not check out is an invalid record.
func decodeRecord(b []byte) Record {
	if len(b) < RecordSize {
		return Record{}
	}
	if crc32.ChecksumIEEE(b[:16]) != binary.BigEndian.Uint32(b[16:20]) {
		return Record{}
	}
	return Record{
		Value:      int32(binary.BigEndian.Uint32(b[0:4])),
		Generation: binary.BigEndian.Uint32(b[4:8]),
		WrittenAt:  time.UnixMilli(int64(binary.BigEndian.Uint64(b[8:16]))),
		Valid:      true,
	}
}
