package wal_manager

import (
	"fmt"
	"os"
	"path/filepath"

	"coredb/storage_engine/recovery"
)

/*
This file contains the actual internal operation wal segment, adapted from
the teacher's own wal_manager/wal_segment.go.

WALSegment.Append — lowest level. Writes raw bytes to the file and tracks
size. Returns the offset the write started at, matching the teacher's
Append, which is how a caller would locate a record it just wrote without
re-deriving it from Size.

WALSegment.Sync — calls File.Sync() which forces OS buffer → disk.
After this, data is durable even if process crashes.
*/

func InitializeWALSegment(segmentId uint64, basePath string) *WALSegment {
	fileName := fmt.Sprintf("wal_%016x.log", segmentId)
	filePath := filepath.Join(basePath, fileName)

	return &WALSegment{
		SegmentId: segmentId,
		FilePath:  filePath,
	}
}

// opens the segment file in append-only mode
func (ws *WALSegment) Open() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		return nil
	}

	// O_APPEND ensures atomic appends at the OS level
	file, err := os.OpenFile(ws.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	ws.File = file
	ws.Size = stat.Size()
	return nil
}

// Append writes data to the segment and returns the offset the write
// started at (not the byte count) — the same contract as the teacher's
// WALSegment.Append.
func (ws *WALSegment) Append(data []byte) (int64, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return 0, fmt.Errorf("segment not opened")
	}

	offset := ws.Size

	n, err := ws.File.Write(data)
	if err != nil {
		return 0, err
	}
	if n != len(data) {
		return 0, fmt.Errorf("short write: wrote %d of %d bytes", n, len(data))
	}

	ws.Size += int64(n)
	return offset, nil
}

// Sync ensures data is persisted to disk.
func (ws *WALSegment) Sync() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return fmt.Errorf("segment not opened")
	}

	return ws.File.Sync()
}

// Close closes the segment file.
func (ws *WALSegment) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		err := ws.File.Close()
		ws.File = nil
		return err
	}
	return nil
}

// IsFull checks if segment has reached size limit.
func (ws *WALSegment) IsFull() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.Size >= SegmentSize
}

// FlushLogManager drains lm's accumulated records, wraps them in a single
// CRC32-checksummed WALRecord keyed by the batch's highest LSN, appends it
// to the segment, and syncs — the per-record integrity check the teacher's
// AppendOperation/calculateCRC gives a single operation, applied here to
// one flush's worth of batched log records instead.
func (ws *WALSegment) FlushLogManager(lm *recovery.LogManager) error {
	records := lm.Records()
	data := lm.Drain()
	if len(data) == 0 {
		return nil
	}

	var lsn uint64
	if len(records) > 0 {
		lsn = uint64(records[len(records)-1].LSN)
	}

	rec := &WALRecord{LSN: lsn, Data: data, CRC: calculateCRC(lsn, data)}
	encoded := rec.Encode()

	if _, err := ws.Append(encoded); err != nil {
		return fmt.Errorf("wal_manager: flush log manager: %w", err)
	}
	return ws.Sync()
}

// ReadRecords reads every WALRecord in the segment at path, validating
// each one's CRC the way the teacher's replaySegment does, and stops (with
// an error) at the first mismatch rather than silently skipping it.
func ReadRecords(path string) ([]*WALRecord, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal_manager: read segment: %w", err)
	}

	var out []*WALRecord
	for len(buf) > 0 {
		rec, n, err := DecodeWALRecord(buf)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
		buf = buf[n:]
	}
	return out, nil
}
