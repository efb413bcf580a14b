package checkpoint

import "sync"

// CheckpointManager atomically persists and loads recovery checkpoints.
type CheckpointManager struct {
	checkpointPath string
	mu             sync.RWMutex
}
