package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"coredb/storage_engine/recovery"
	"coredb/types"
)

/*
This file is the main file of the CheckpointManager.

Checkpoint manager persists a recovery.Checkpoint — the log position
already known durable, the transactions in flight at that position, and
the database state snapshot as of that position — so a crash before the
next checkpoint can resume recovery from here instead of from LSN 0.
*/

func NewCheckpointManager(dbPath string) (*CheckpointManager, error) {
	return &CheckpointManager{
		checkpointPath: filepath.Join(dbPath, "checkpoint.bin"),
	}, nil
}

// SaveCheckpoint atomically saves checkpoint: write to a temp file, fsync
// the temp file, rename over the real path, fsync the directory.
func (cm *CheckpointManager) SaveCheckpoint(checkpoint recovery.Checkpoint) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := checkpoint.Encode()
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	tempPath := cm.checkpointPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("checkpoint: write temp: %w", err)
	}

	tempFile, err := os.OpenFile(tempPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("checkpoint: open temp: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("checkpoint: sync temp: %w", err)
	}
	tempFile.Close()

	// On Unix, rename is atomic - file is either old or new, never corrupted.
	if err := os.Rename(tempPath, cm.checkpointPath); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}

	dir, err := os.Open(filepath.Dir(cm.checkpointPath))
	if err == nil {
		dir.Sync()
		dir.Close()
	}

	fmt.Printf("checkpoint saved at LSN %d (%d active txns)\n", checkpoint.CheckpointLSN, len(checkpoint.ActiveTxns))
	return nil
}

// LoadCheckpoint loads the last checkpoint, or a zero-value checkpoint at
// LSN 0 with empty state if none exists yet.
func (cm *CheckpointManager) LoadCheckpoint() (recovery.Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	empty := recovery.Checkpoint{
		CheckpointLSN: 0,
		ActiveTxns:    map[types.TxnID]types.LSN{},
		PersistData:   map[string]int32{},
	}

	if _, err := os.Stat(cm.checkpointPath); os.IsNotExist(err) {
		return empty, nil
	}

	data, err := os.ReadFile(cm.checkpointPath)
	if err != nil {
		return recovery.Checkpoint{}, fmt.Errorf("checkpoint: read: %w", err)
	}

	checkpoint, err := recovery.DecodeCheckpoint(data)
	if err != nil {
		fmt.Println("checkpoint: file corrupted, starting from LSN 0:", err)
		return empty, nil
	}

	fmt.Printf("checkpoint loaded: LSN=%d, %d active txns\n", checkpoint.CheckpointLSN, len(checkpoint.ActiveTxns))
	return checkpoint, nil
}

// DeleteCheckpoint removes the checkpoint file.
func (cm *CheckpointManager) DeleteCheckpoint() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.Remove(cm.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}
