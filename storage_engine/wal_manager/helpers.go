package wal_manager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Encode serializes r as LSN(8) | LEN(4) | CRC(4) | DATA(LEN), the exact
// header layout the teacher's own WALRecord.Encode uses.
func (r *WALRecord) Encode() []byte {
	buf := make([]byte, RecordHeaderSize+len(r.Data))
	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.CRC)
	copy(buf[16:], r.Data)
	return buf
}

// ValidateCRC reports whether r.CRC matches the checksum of r.LSN and
// r.Data, catching a torn or corrupted on-disk write.
func (r *WALRecord) ValidateCRC() bool {
	return calculateCRC(r.LSN, r.Data) == r.CRC
}

// calculateCRC computes the CRC32 checksum over the LSN and data, matching
// the teacher's own calculateCRC.
func calculateCRC(lsn uint64, data []byte) uint32 {
	hasher := crc32.NewIEEE()
	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)
	hasher.Write(lsnBytes[:])
	hasher.Write(data)
	return hasher.Sum32()
}

// DecodeWALRecord reads one WALRecord from the front of buf, returning the
// record, its CRC validation result, and the number of bytes consumed.
func DecodeWALRecord(buf []byte) (*WALRecord, int, error) {
	if len(buf) < RecordHeaderSize {
		return nil, 0, fmt.Errorf("wal_manager: record header truncated: got %d bytes", len(buf))
	}
	lsn := binary.BigEndian.Uint64(buf[0:8])
	dataLen := binary.BigEndian.Uint32(buf[8:12])
	crc := binary.BigEndian.Uint32(buf[12:16])

	end := RecordHeaderSize + int(dataLen)
	if len(buf) < end {
		return nil, 0, fmt.Errorf("wal_manager: record data truncated: need %d bytes, have %d", end, len(buf))
	}
	data := make([]byte, dataLen)
	copy(data, buf[RecordHeaderSize:end])

	rec := &WALRecord{LSN: lsn, Data: data, CRC: crc}
	if !rec.ValidateCRC() {
		return rec, end, fmt.Errorf("wal_manager: CRC mismatch at LSN %d", lsn)
	}
	return rec, end, nil
}
