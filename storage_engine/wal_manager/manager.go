package wal_manager

import (
	"fmt"
	"os"
	"sync"

	"coredb/storage_engine/recovery"
)

// WALManager owns the active segment a database writes its log to, rolling
// over to a new segment once the current one reaches SegmentSize.
type WALManager struct {
	dir       string
	nextSegID uint64
	active    *WALSegment
	mu        sync.Mutex
}

// Open opens (creating if necessary) the WAL directory at dir and its
// first segment.
func Open(dir string) (*WALManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal_manager: open: %w", err)
	}
	wm := &WALManager{dir: dir}
	if err := wm.rollLocked(); err != nil {
		return nil, err
	}
	return wm, nil
}

func (wm *WALManager) rollLocked() error {
	seg := InitializeWALSegment(wm.nextSegID, wm.dir)
	if err := seg.Open(); err != nil {
		return fmt.Errorf("wal_manager: open segment %d: %w", wm.nextSegID, err)
	}
	wm.nextSegID++
	wm.active = seg
	return nil
}

// Flush drains lm's accumulated records to the active segment, rolling to
// a fresh segment first if the active one is already full.
func (wm *WALManager) Flush(lm *recovery.LogManager) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.active.IsFull() {
		if err := wm.active.Close(); err != nil {
			return fmt.Errorf("wal_manager: close full segment: %w", err)
		}
		if err := wm.rollLocked(); err != nil {
			return err
		}
	}
	return wm.active.FlushLogManager(lm)
}

// Close closes the active segment.
func (wm *WALManager) Close() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.active == nil {
		return nil
	}
	return wm.active.Close()
}
