// Package wal_manager persists a recovery.LogManager's record stream to
// append-only segment files, adapted from the teacher's own root-level
// wal_manager package (structs.go/wal.go/wal_segment.go/helpers.go):
// same segment rollover and CRC32-checksummed record framing, retargeted
// from the teacher's types.Operation payload to this core's
// msgpack-encoded recovery.LogRecord batches.
package wal_manager

import (
	"os"
	"sync"
)

// RecordHeaderSize is LSN(8) + LEN(4) + CRC(4), matching the teacher's own
// on-disk record header.
const RecordHeaderSize = 16

// SegmentSize is the size, in bytes, at which a segment is considered full
// and a new one should be opened — the teacher's own constant.
const SegmentSize = 16 * 1024 * 1024

// WALSegment is one append-only log file.
type WALSegment struct {
	SegmentId uint64
	FilePath  string
	File      *os.File
	Size      int64

	mu sync.Mutex
}

// WALRecord is one length-prefixed, CRC32-checksummed entry in a segment:
// LSN(8) | LEN(4) | CRC(4) | DATA(LEN). Data holds one flush's worth of
// recovery.LogManager's drained msgpack byte stream, not a single
// LogRecord — a flush batches everything accumulated since the last one,
// the same way the teacher's AppendOperation writes one WALRecord per
// call but this engine's callers flush in batches instead of per-op.
type WALRecord struct {
	LSN  uint64
	Data []byte
	CRC  uint32
}
