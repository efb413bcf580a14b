package wal_manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/storage_engine/recovery"
)

func TestFlushLogManagerRoundTripsWithValidCRC(t *testing.T) {
	dir := t.TempDir()
	seg := InitializeWALSegment(0, dir)
	require.NoError(t, seg.Open())
	defer seg.Close()

	lm := recovery.NewLogManager()
	lm.Begin(1)
	lm.Insert(1, "a", 1)
	lm.Commit(1)

	require.NoError(t, seg.FlushLogManager(lm))

	records, err := ReadRecords(filepath.Join(dir, "wal_0000000000000000.log"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].ValidateCRC())

	decoded, err := recovery.DecodeLog(records[0].Data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	require.Equal(t, recovery.RecordCommit, decoded[2].Type)
}

func TestReadRecordsDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	seg := InitializeWALSegment(0, dir)
	require.NoError(t, seg.Open())
	defer seg.Close()

	lm := recovery.NewLogManager()
	lm.Insert(1, "a", 1)
	require.NoError(t, seg.FlushLogManager(lm))

	path := filepath.Join(dir, "wal_0000000000000000.log")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF // corrupt the last data byte
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = ReadRecords(path)
	require.Error(t, err)
}

func TestFlushLogManagerSkipsEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	seg := InitializeWALSegment(0, dir)
	require.NoError(t, seg.Open())
	defer seg.Close()

	lm := recovery.NewLogManager()
	require.NoError(t, seg.FlushLogManager(lm))
	require.Equal(t, int64(0), seg.Size)
}

func TestIsFullReflectsSegmentSize(t *testing.T) {
	dir := t.TempDir()
	seg := InitializeWALSegment(0, dir)
	require.NoError(t, seg.Open())
	defer seg.Close()

	require.False(t, seg.IsFull())
	seg.Size = SegmentSize
	require.True(t, seg.IsFull())
}
